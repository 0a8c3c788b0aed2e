// Package daemon wires the trap receiver, the rule set and the dispatch
// worker together.
//
// The Coordinator runs on two paths. The receive path calls OnRecord for
// every decoded notification; it matches, renders and enqueues without
// touching the network. The dispatch worker drains the queue in order,
// one event at a time, until Stop.
package daemon
