// Package server exposes the engine over a line-delimited JSON
// protocol on TCP or unix sockets. Each request line is
// {"event": <name>, "data": {...}}; each response line is
// {"status": "success"|"error", "data": {...}, "error": <message>}.
//
// Request names with a registered handler are administrative calls.
// Any other valid event name is treated as an event emission from the
// connection's registered agent: the wire protocol's requests are
// themselves events.
//
// Observers receive matched events as pushed lines shaped like
// requests: {"event": "observation:event", "data": {...}}.
package server

import "encoding/json"

// Request is one inbound line.
type Request struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Response is one outbound reply line.
type Response struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Push is one outbound delivery line, shaped like a request so
// observers can demultiplex replies from deliveries by the presence of
// the "event" key.
type Push struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func successResponse(data map[string]any) Response {
	return Response{Status: "success", Data: data}
}

func errorResponse(err error) Response {
	return Response{Status: "error", Error: err.Error()}
}
