package strategy

import (
	"time"

	"github.com/rs/zerolog"

	"swingtrader/internal/model"
	"swingtrader/internal/signal"
)

// EventSink receives run events. The Redis publisher, the websocket hub and
// the alert dispatcher implement it.
type EventSink interface {
	Publish(ev model.Event)
}

// SnapshotEvent is the payload of an EventSnapshot.
type SnapshotEvent struct {
	signal.Snapshot
	State string `json:"state"`
	Entry bool   `json:"entry"`
}

// NotificationEvent is the payload of an EventNotification.
type NotificationEvent struct {
	model.Notification
	Error string `json:"error,omitempty"`
}

// ResultEvent is the payload of an EventResult.
type ResultEvent struct {
	Signaled []string          `json:"signaled"`
	Halted   map[string]string `json:"halted,omitempty"`
	Summary  any               `json:"summary,omitempty"`
}

// EventObserver turns engine callbacks into model.Events for a set of sinks.
// Snapshots are forwarded only once every signal component is ready unless
// AllSnapshots is set.
type EventObserver struct {
	AllSnapshots bool

	runID       string
	rsThreshold float64
	sinks       []EventSink
	log         zerolog.Logger
}

// NewEventObserver creates an observer tagging events with runID.
func NewEventObserver(runID string, rsThreshold float64, log zerolog.Logger, sinks ...EventSink) *EventObserver {
	return &EventObserver{
		runID:       runID,
		rsThreshold: rsThreshold,
		sinks:       sinks,
		log:         log.With().Str("component", "events").Logger(),
	}
}

func (o *EventObserver) emit(kind model.EventKind, symbol string, ts time.Time, payload any) {
	ev, err := model.NewEvent(kind, o.runID, symbol, ts, payload)
	if err != nil {
		o.log.Error().Err(err).Str("symbol", symbol).Msg("drop event")
		return
	}
	for _, s := range o.sinks {
		s.Publish(ev)
	}
}

func (o *EventObserver) OnSnapshot(s signal.Snapshot, state model.PositionState) {
	if !o.AllSnapshots && !s.Ready() {
		return
	}
	o.emit(model.EventSnapshot, s.Symbol, s.Time, SnapshotEvent{Snapshot: s, State: state.String(), Entry: s.Entry(o.rsThreshold)})
}

func (o *EventObserver) OnIntent(in model.OrderIntent) {
	o.emit(model.EventIntent, in.Symbol, in.Time, in)
}

func (o *EventObserver) OnNotification(n model.Notification, err error) {
	p := NotificationEvent{Notification: n}
	if err != nil {
		p.Error = err.Error()
	}
	o.emit(model.EventNotification, n.Symbol, n.Time, p)
}

// PublishResult emits the end-of-run event. summary is any JSON-encodable
// report, typically the portfolio summary.
func (o *EventObserver) PublishResult(r RunResult, ts time.Time, summary any) {
	p := ResultEvent{Signaled: r.SignaledSymbols(), Summary: summary}
	if len(r.Halted) > 0 {
		p.Halted = make(map[string]string, len(r.Halted))
		for sym, err := range r.Halted {
			p.Halted[sym] = err.Error()
		}
	}
	o.emit(model.EventResult, "", ts, p)
}
