package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind labels a run event published to monitors.
type EventKind string

const (
	EventSnapshot     EventKind = "snapshot"
	EventIntent       EventKind = "intent"
	EventNotification EventKind = "notification"
	EventResult       EventKind = "result"
)

// Event is the envelope every run event is published in, over Redis and the
// websocket gateway alike.
type Event struct {
	Kind   EventKind       `json:"kind"`
	RunID  string          `json:"run_id"`
	Symbol string          `json:"symbol,omitempty"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data"`
}

// NewEvent marshals payload into an Event.
func NewEvent(kind EventKind, runID, symbol string, ts time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", kind, err)
	}
	return Event{Kind: kind, RunID: runID, Symbol: symbol, Time: ts, Data: data}, nil
}

// JSON returns the wire encoding of the event.
func (e *Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}
