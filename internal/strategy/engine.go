// Package strategy is the multi-instrument signal-and-position engine.
//
// The Engine owns one evaluator and one Controller per instrument. For each
// synchronized tick it refreshes every instrument's indicator state, computes
// its signal snapshot, runs the controller step and collects the resulting
// order intents. Broker notifications are routed back with Notify.
//
// The engine is single-goroutine: Tick, Step and Notify must not be called
// concurrently.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"swingtrader/internal/marketdata/replay"
	"swingtrader/internal/model"
	"swingtrader/internal/signal"
)

// ErrInstrumentHalted is returned for bars of an instrument that already
// received a malformed or out-of-order bar.
var ErrInstrumentHalted = errors.New("instrument halted")

// Session is the calendar view the engine needs. *markethours.Calendar
// satisfies it.
type Session interface {
	NewSession(prev, cur time.Time) bool
	BeforeOpen(t time.Time) bool
	AfterClose(t time.Time) bool
}

// Observer receives engine events. Implementations must not retain or
// mutate engine state; they run synchronously inside the step.
type Observer interface {
	OnSnapshot(s signal.Snapshot, state model.PositionState)
	OnIntent(in model.OrderIntent)
	OnNotification(n model.Notification, err error)
}

// TickObserver is optionally implemented by observers that want a callback
// once Run has finished a whole tick.
type TickObserver interface {
	OnTickDone(ts time.Time, bars int, took time.Duration)
}

// Broker is the simulated execution venue driven by Run.
type Broker interface {
	// OnTick is called before the engine sees the tick's bars; it fills
	// queued orders at those bars and returns the outcomes.
	OnTick(t replay.Tick) []model.Notification
	// Submit queues an intent for execution on a later tick.
	Submit(in model.OrderIntent)
	// Close resolves every order still queued at the end of the run.
	Close() []model.Notification
}

// StepResult is the outcome of one instrument's bar.
type StepResult struct {
	Snapshot signal.Snapshot
	Intent   *model.OrderIntent
	State    model.PositionState
}

// RunResult summarises which instruments ever signaled and which halted.
type RunResult struct {
	Signaled map[string]bool
	Halted   map[string]error
}

// SignaledSymbols returns the signaled instruments, sorted.
func (r RunResult) SignaledSymbols() []string {
	out := make([]string, 0, len(r.Signaled))
	for s, ok := range r.Signaled {
		if ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// HaltedSymbols returns the halted instruments, sorted.
func (r RunResult) HaltedSymbols() []string {
	out := make([]string, 0, len(r.Halted))
	for s := range r.Halted {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type instrument struct {
	eval     *signal.Evaluator
	ctl      *Controller
	signaled bool
	halted   error
}

// Engine is the multi-instrument driver.
type Engine struct {
	opts    Options
	params  signal.Params
	session Session
	log     zerolog.Logger

	instruments map[string]*instrument
	observers   []Observer
}

// NewEngine validates opts and creates an empty engine. session may be nil,
// in which case VWAP never resets and no intraday rules apply.
func NewEngine(opts Options, session Session, log zerolog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("strategy options: %w", err)
	}
	var boundary func(prev, cur time.Time) bool
	if session != nil {
		boundary = session.NewSession
	}
	return &Engine{
		opts:        opts,
		params:      opts.SignalParams(boundary),
		session:     session,
		log:         log.With().Str("component", "engine").Logger(),
		instruments: make(map[string]*instrument),
	}, nil
}

// AddObserver registers o for every subsequent event.
func (e *Engine) AddObserver(o Observer) {
	e.observers = append(e.observers, o)
}

// Options returns the engine's configuration.
func (e *Engine) Options() Options { return e.opts }

func (e *Engine) get(symbol string) *instrument {
	in, ok := e.instruments[symbol]
	if !ok {
		in = &instrument{
			eval: signal.NewEvaluator(symbol, e.params),
			ctl:  NewController(symbol, e.opts, e.log),
		}
		e.instruments[symbol] = in
	}
	return in
}

// Step runs the full per-instrument evaluation for one bar: update the
// indicator state, compute the snapshot, run the controller.
//
// A malformed or out-of-order bar halts the instrument; every later bar for
// it returns ErrInstrumentHalted.
func (e *Engine) Step(b model.Bar) (StepResult, error) {
	in := e.get(b.Symbol)
	if in.halted != nil {
		return StepResult{State: in.ctl.State()}, fmt.Errorf("%w: %s: %v", ErrInstrumentHalted, b.Symbol, in.halted)
	}

	snap, err := in.eval.Update(b)
	if err != nil {
		in.halted = err
		e.log.Error().Err(err).Str("symbol", b.Symbol).Msg("instrument halted")
		return StepResult{State: in.ctl.State()}, err
	}

	var flags SessionFlags
	if e.session != nil {
		flags.BeforeOpen = e.session.BeforeOpen(b.Time)
		flags.AfterClose = e.session.AfterClose(b.Time)
	}
	d := in.ctl.OnBar(snap, flags)
	if d.EntrySignal {
		in.signaled = true
	}

	res := StepResult{Snapshot: snap, Intent: d.Intent, State: in.ctl.State()}
	for _, o := range e.observers {
		o.OnSnapshot(snap, res.State)
		if d.Intent != nil {
			o.OnIntent(*d.Intent)
		}
	}
	return res, nil
}

// Tick processes one synchronized bar per instrument, in symbol order, each
// instrument completely before the next. Errors halt only the offending
// instrument and are logged.
func (e *Engine) Tick(ts time.Time, bars []model.Bar) []model.OrderIntent {
	ordered := make([]model.Bar, len(bars))
	copy(ordered, bars)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Symbol < ordered[j].Symbol })

	var intents []model.OrderIntent
	for _, b := range ordered {
		res, err := e.Step(b)
		if err != nil {
			if errors.Is(err, ErrInstrumentHalted) {
				e.log.Debug().Str("symbol", b.Symbol).Time("tick", ts).Msg("skipping halted instrument")
			}
			continue
		}
		if res.Intent != nil {
			intents = append(intents, *res.Intent)
		}
	}
	return intents
}

// Notify routes a broker notification to its instrument's controller.
func (e *Engine) Notify(n model.Notification) error {
	in, ok := e.instruments[n.Symbol]
	var err error
	if !ok {
		err = fmt.Errorf("%w: unknown instrument %s", ErrStaleNotification, n.Symbol)
	} else {
		err = in.ctl.OnNotification(n)
	}
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", n.Symbol).Str("intent", n.IntentID).Msg("notification")
	}
	for _, o := range e.observers {
		o.OnNotification(n, err)
	}
	return err
}

// State returns an instrument's position state.
func (e *Engine) State(symbol string) (model.PositionState, bool) {
	in, ok := e.instruments[symbol]
	if !ok {
		return model.Flat, false
	}
	return in.ctl.State(), true
}

// Controller exposes an instrument's controller for inspection.
func (e *Engine) Controller(symbol string) (*Controller, bool) {
	in, ok := e.instruments[symbol]
	if !ok {
		return nil, false
	}
	return in.ctl, true
}

// Result returns the signaled and halted instruments so far.
func (e *Engine) Result() RunResult {
	r := RunResult{
		Signaled: make(map[string]bool, len(e.instruments)),
		Halted:   make(map[string]error),
	}
	for sym, in := range e.instruments {
		r.Signaled[sym] = in.signaled
		if in.halted != nil {
			r.Halted[sym] = in.halted
		}
	}
	return r
}

// Run drives a whole replay: for each tick the broker reports fills for
// previously submitted intents, the engine processes the bars, and new
// intents are submitted. When ticks closes, outstanding orders are resolved
// through broker.Close.
func (e *Engine) Run(ctx context.Context, ticks <-chan replay.Tick, broker Broker) (RunResult, error) {
	n := 0
	for {
		select {
		case <-ctx.Done():
			return e.Result(), ctx.Err()
		case tk, ok := <-ticks:
			if !ok {
				for _, note := range broker.Close() {
					_ = e.Notify(note)
				}
				e.log.Info().Int("ticks", n).Int("instruments", len(e.instruments)).Msg("run finished")
				return e.Result(), nil
			}
			start := time.Now()
			for _, note := range broker.OnTick(tk) {
				_ = e.Notify(note)
			}
			for _, in := range e.Tick(tk.Time, tk.Bars) {
				broker.Submit(in)
			}
			n++
			took := time.Since(start)
			for _, o := range e.observers {
				if to, ok := o.(TickObserver); ok {
					to.OnTickDone(tk.Time, len(tk.Bars), took)
				}
			}
		}
	}
}
