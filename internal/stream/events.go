// Package stream encodes dispatch progress as newline-delimited JSON
// frames pushed over a long-lived client connection.
package stream

import (
	"encoding/json"

	"perfeval-api/internal/dispatch"
)

// Every frame carries a "type" discriminator; clients treat unrecognized
// types as ignorable for forward compatibility.
const (
	EventStart      = "start"
	EventModelStart = "model_start"
	EventResult     = "result"
	EventHeartbeat  = "heartbeat"
	EventComplete   = "complete"
)

type startEvent struct {
	Type   string   `json:"type"`
	Models []string `json:"models"`
}

type modelStartEvent struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

type resultEvent struct {
	Type          string          `json:"type"`
	Model         string          `json:"model"`
	Status        string          `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	ElapsedMillis int64           `json:"elapsed_ms"`
}

type heartbeatEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type completeEvent struct {
	Type      string `json:"type"`
	Completed int    `json:"completed"`
}

func newResultEvent(r dispatch.Result) resultEvent {
	return resultEvent{
		Type:          EventResult,
		Model:         r.Model,
		Status:        string(r.Status),
		Result:        r.Payload,
		Error:         r.Error,
		ElapsedMillis: r.ElapsedMillis,
	}
}
