// Package stream pushes delivered alert events to WebSocket clients at
// /ws/events. Each message is {"event":"alert","data":{...}} where data is the
// full AlertEvent including its id and rule. Clients that cannot keep up are
// disconnected rather than slowing the dispatcher.
package stream
