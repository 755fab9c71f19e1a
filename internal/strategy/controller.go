package strategy

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"swingtrader/internal/model"
	"swingtrader/internal/signal"
)

// ErrStaleNotification is returned for notifications that do not match the
// instrument's outstanding intent.
var ErrStaleNotification = errors.New("stale notification")

// SessionFlags carries the calendar's view of the current bar.
type SessionFlags struct {
	BeforeOpen bool
	AfterClose bool
}

// Decision is the controller's output for one bar.
type Decision struct {
	Intent *model.OrderIntent
	// EntrySignal is set when the combined entry condition held while flat.
	EntrySignal bool
}

// Controller is the per-instrument position state machine:
//
//	Flat -> PendingBuy -> Long -> PendingSell -> Flat
//
// At most one intent is outstanding at any time.
type Controller struct {
	symbol string
	opts   Options
	log    zerolog.Logger

	state         model.PositionState
	pending       *model.OrderIntent
	entry         float64
	highest       float64
	trailingArmed bool
}

// NewController creates a flat controller for symbol.
func NewController(symbol string, opts Options, log zerolog.Logger) *Controller {
	return &Controller{
		symbol: symbol,
		opts:   opts,
		log:    log.With().Str("symbol", symbol).Logger(),
		state:  model.Flat,
	}
}

// State returns the current position state.
func (c *Controller) State() model.PositionState { return c.state }

// Entry returns the recorded entry price while long.
func (c *Controller) Entry() float64 { return c.entry }

// Highest returns the highest close since entry.
func (c *Controller) Highest() float64 { return c.highest }

// TrailingArmed reports whether the trailing stop has been activated.
func (c *Controller) TrailingArmed() bool { return c.trailingArmed }

// Pending returns the outstanding intent, if any.
func (c *Controller) Pending() (model.OrderIntent, bool) {
	if c.pending == nil {
		return model.OrderIntent{}, false
	}
	return *c.pending, true
}

// OnBar runs one controller step on the bar's snapshot.
func (c *Controller) OnBar(s signal.Snapshot, sess SessionFlags) Decision {
	switch c.state {
	case model.Long:
		return Decision{Intent: c.exit(s, sess)}
	case model.Flat:
		if !s.Entry(c.opts.RSThreshold) {
			return Decision{}
		}
		d := Decision{EntrySignal: true}
		if sess.BeforeOpen || sess.AfterClose {
			return d
		}
		d.Intent = c.issue(model.SideBuy, model.ReasonEntry, s)
		c.state = model.PendingBuy
		return d
	}
	// PendingBuy / PendingSell: single-order discipline
	return Decision{}
}

func (c *Controller) exit(s signal.Snapshot, sess SessionFlags) *model.OrderIntent {
	if s.Close > c.highest {
		c.highest = s.Close
	}
	if !c.trailingArmed && c.highest >= c.entry*(1+c.opts.TrailingActivationPct) {
		c.trailingArmed = true
		c.log.Debug().Float64("entry", c.entry).Float64("highest", c.highest).Msg("trailing stop armed")
	}

	var reason model.Reason
	switch {
	case s.Close <= c.entry*(1-c.opts.StopLossPct):
		reason = model.ReasonStopLoss
	case c.trailingArmed && s.Close <= c.highest*(1-c.opts.TrailingStopPct):
		reason = model.ReasonTrailingStop
	case sess.AfterClose:
		reason = model.ReasonSessionEnd
	default:
		return nil
	}
	in := c.issue(model.SideSell, reason, s)
	c.state = model.PendingSell
	return in
}

func (c *Controller) issue(side model.Side, reason model.Reason, s signal.Snapshot) *model.OrderIntent {
	in := &model.OrderIntent{
		ID:     uuid.NewString(),
		Symbol: c.symbol,
		Side:   side,
		Reason: reason,
		Price:  s.Close,
		Time:   s.Time,
	}
	c.pending = in
	c.log.Info().
		Str("intent", in.ID).
		Str("side", string(side)).
		Str("reason", string(reason)).
		Float64("price", in.Price).
		Time("bar", in.Time).
		Msg("order intent")
	return in
}

// OnNotification applies a broker notification.
//
// Only a notification carrying the outstanding intent's ID resolves it.
// Anything else returns ErrStaleNotification and leaves the pending order
// alone. The one exception is a fill that contradicts the controller's
// position while nothing is pending: the broker's position wins, so a BUY
// fill seen while Flat moves to Long and a SELL fill seen while Long moves
// to Flat. The error is still returned so the caller can log it.
func (c *Controller) OnNotification(n model.Notification) error {
	if c.pending == nil || c.pending.ID != n.IntentID || c.pending.Side != n.Side {
		stale := fmt.Errorf("%w: %s intent %s in state %s", ErrStaleNotification, c.symbol, n.IntentID, c.state)
		if c.pending == nil && n.Filled() {
			c.reconcile(n)
		}
		return stale
	}

	pending := c.pending
	c.pending = nil

	if !n.Filled() {
		// rejection, cancellation or margin failure: position unchanged
		if pending.Side == model.SideBuy {
			c.state = model.Flat
		} else {
			c.state = model.Long
		}
		c.log.Warn().
			Str("intent", pending.ID).
			Str("status", string(n.Status)).
			Str("message", n.Message).
			Msg("order not filled")
		return nil
	}

	switch pending.Side {
	case model.SideBuy:
		entry := n.Price
		if c.opts.EntryPriceMode == EntryAtDecision {
			entry = pending.Price
		}
		c.open(entry)
	case model.SideSell:
		c.flatten()
	}
	c.log.Info().
		Str("intent", pending.ID).
		Str("side", string(pending.Side)).
		Float64("price", n.Price).
		Int64("qty", n.Qty).
		Str("state", c.state.String()).
		Msg("order filled")
	return nil
}

// reconcile adopts an unexpected fill reported while nothing is pending.
func (c *Controller) reconcile(n model.Notification) {
	switch {
	case n.Side == model.SideBuy && c.state == model.Flat:
		c.open(n.Price)
	case n.Side == model.SideSell && c.state == model.Long:
		c.flatten()
	default:
		return
	}
	c.log.Warn().
		Str("intent", n.IntentID).
		Str("side", string(n.Side)).
		Float64("price", n.Price).
		Str("state", c.state.String()).
		Msg("adopted unexpected fill")
}

func (c *Controller) open(entry float64) {
	c.state = model.Long
	c.entry = entry
	c.highest = entry
	c.trailingArmed = false
}

func (c *Controller) flatten() {
	c.state = model.Flat
	c.entry, c.highest, c.trailingArmed = 0, 0, false
}
