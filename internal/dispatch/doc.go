// Package dispatch delivers alert events to the collector's client socket.
//
// Queue holds events in arrival order and is the only structure shared
// between the receive path and the dispatch worker. Loop is that worker: it
// peeks the head, hands it to the Sender and pops it only once the collector
// has acknowledged it, so delivery is in order and at least once.
//
// Wire format: one JSON document per event, newline terminated:
//
//	{"name":"coldStart","output":"Host web01 restarted","status":1,"handlers":["default"]}
//
// The collector answers "ok" (surrounding whitespace ignored). Anything else,
// silence until the timeout, or an I/O error discards the connection and the
// event is retried on a fresh one. Only connect failures back off.
package dispatch
