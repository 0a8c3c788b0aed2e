// Package types defines the alert event shared by trapbridge and the
// collectors it feeds. AlertEvent is the canonical in-memory form; MarshalWire
// produces the newline-delimited JSON document written to the client socket:
//
//	{"name":"...","output":"...","status":1,"handlers":["default"]}
package types
