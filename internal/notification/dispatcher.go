package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"swingtrader/internal/model"
	"swingtrader/internal/portfolio"
	"swingtrader/internal/strategy"
)

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

// Dispatcher turns run events into alerts and delivers them to every
// notifier from a background goroutine. It implements strategy.EventSink;
// Publish never blocks the replay, alerts beyond the queue are dropped.
type Dispatcher struct {
	notifiers []Notifier
	minLevel  AlertLevel
	queue     chan Alert
	log       zerolog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
	wg      sync.WaitGroup
}

// NewDispatcher starts a dispatcher sending alerts at or above minLevel.
func NewDispatcher(minLevel AlertLevel, log zerolog.Logger, notifiers ...Notifier) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		minLevel:  minLevel,
		queue:     make(chan Alert, defaultQueueSize),
		log:       log.With().Str("component", "notify").Logger(),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// Publish converts ev to an alert, if it warrants one, and queues it.
func (d *Dispatcher) Publish(ev model.Event) {
	alerts, err := alertsFor(ev)
	if err != nil {
		d.log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("decode event")
		return
	}
	for _, a := range alerts {
		if a.Level.rank() < d.minLevel.rank() {
			continue
		}
		d.enqueue(a)
	}
}

func (d *Dispatcher) enqueue(a Alert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- a:
	default:
		d.dropped++
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for a := range d.queue {
		for _, n := range d.notifiers {
			ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
			if err := n.Send(ctx, a); err != nil {
				d.log.Warn().Err(err).Str("title", a.Title).Msg("alert delivery failed")
			}
			cancel()
		}
	}
}

// Dropped returns how many alerts were lost to a full queue.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Close delivers every queued alert and stops the dispatcher.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
	if d.dropped > 0 {
		d.log.Warn().Int("dropped", d.dropped).Msg("alerts dropped")
	}
}

type resultPayload struct {
	Signaled []string          `json:"signaled"`
	Halted   map[string]string `json:"halted"`
	Summary  portfolio.Summary `json:"summary"`
}

// alertsFor maps one run event to zero or more alerts. Snapshots and
// filled notifications are not alerted.
func alertsFor(ev model.Event) ([]Alert, error) {
	base := Alert{RunID: ev.RunID, Symbol: ev.Symbol}
	day := ev.Time.Format(time.DateOnly)

	switch ev.Kind {
	case model.EventIntent:
		var in model.OrderIntent
		if err := json.Unmarshal(ev.Data, &in); err != nil {
			return nil, err
		}
		a := base
		a.Level = AlertInfo
		if in.Side == model.SideBuy {
			a.Title = "Entry signal " + in.Symbol
			a.Message = fmt.Sprintf("BUY %s on %s, close %.2f", in.Symbol, day, in.Price)
		} else {
			a.Title = "Exit " + in.Symbol
			a.Message = fmt.Sprintf("SELL %s on %s (%s), close %.2f", in.Symbol, day, in.Reason, in.Price)
		}
		return []Alert{a}, nil

	case model.EventNotification:
		var n strategy.NotificationEvent
		if err := json.Unmarshal(ev.Data, &n); err != nil {
			return nil, err
		}
		if n.Status == model.StatusFilled && n.Error == "" {
			return nil, nil
		}
		a := base
		a.Level = AlertWarning
		a.Title = fmt.Sprintf("%s %s %s", n.Side, n.Symbol, n.Status)
		a.Message = n.Message
		if n.Error != "" {
			a.Message = strings.TrimSpace(a.Message + " " + n.Error)
		}
		return []Alert{a}, nil

	case model.EventResult:
		var r resultPayload
		if err := json.Unmarshal(ev.Data, &r); err != nil {
			return nil, err
		}
		s := r.Summary
		summary := base
		summary.Level = AlertInfo
		summary.Title = "Backtest complete"
		summary.Message = fmt.Sprintf("final %s, return %s%%, max drawdown %s%%, round trips %d (won %d, lost %d), signaled %d",
			s.FinalValue.StringFixed(2), s.TotalReturn.Shift(2).StringFixed(2), s.MaxDrawdown.Shift(2).StringFixed(2),
			s.RoundTrips, s.Won, s.Lost, len(r.Signaled))
		out := []Alert{summary}
		if len(r.Halted) > 0 {
			syms := make([]string, 0, len(r.Halted))
			for sym := range r.Halted {
				syms = append(syms, sym)
			}
			sort.Strings(syms)
			halted := base
			halted.Level = AlertCritical
			halted.Title = fmt.Sprintf("%d instruments halted", len(syms))
			lines := make([]string, len(syms))
			for i, sym := range syms {
				lines[i] = sym + ": " + r.Halted[sym]
			}
			halted.Message = strings.Join(lines, "\n")
			out = append(out, halted)
		}
		return out, nil
	}
	return nil, nil
}
