// Package execution simulates order execution for backtests: a paper broker
// that fills order intents at the next bar's open and a SQLite journal that
// persists the fills.
package execution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"swingtrader/internal/marketdata/replay"
	"swingtrader/internal/model"
	"swingtrader/internal/portfolio"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       model.Side      `json:"side"`
	Reason     model.Reason    `json:"reason"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Realized   decimal.Decimal `json:"realized"`
	DecidedAt  time.Time       `json:"decided_at"`
	FilledAt   time.Time       `json:"filled_at"`
}

// FillRecorder persists fills. *Journal satisfies it.
type FillRecorder interface {
	RecordFill(f Fill) error
}

// Config holds the simulation parameters.
type Config struct {
	// PositionPct is the fraction of available cash committed per entry.
	// Zero selects the fixed Size instead.
	PositionPct float64 `yaml:"position_pct"`
	Size        int64   `yaml:"size"`
}

// DefaultConfig commits 10% of cash per entry.
func DefaultConfig() Config {
	return Config{PositionPct: 0.10, Size: 1}
}

// PaperBroker simulates order execution without real broker calls.
//
// Intents are queued on Submit and executed at the open of the instrument's
// next bar. Buys that cannot be afforded report MARGIN, buys that breach a
// risk limit report REJECTED, and intents still queued when the run ends
// report CANCELED.
type PaperBroker struct {
	mu      sync.Mutex
	cfg     Config
	pf      *portfolio.Portfolio
	risk    *portfolio.RiskManager
	journal FillRecorder
	log     zerolog.Logger

	queued []model.OrderIntent
	fills  []Fill
}

// NewPaperBroker creates a broker over pf. risk may be nil.
func NewPaperBroker(pf *portfolio.Portfolio, risk *portfolio.RiskManager, cfg Config, log zerolog.Logger) *PaperBroker {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	return &PaperBroker{
		cfg:    cfg,
		pf:     pf,
		risk:   risk,
		log:    log.With().Str("component", "paper").Logger(),
		queued: make([]model.OrderIntent, 0, 16),
		fills:  make([]Fill, 0, 256),
	}
}

// SetJournal attaches a fill recorder.
func (p *PaperBroker) SetJournal(j FillRecorder) {
	p.mu.Lock()
	p.journal = j
	p.mu.Unlock()
}

// Portfolio returns the account the broker trades.
func (p *PaperBroker) Portfolio() *portfolio.Portfolio { return p.pf }

// Submit queues an intent for the next bar.
func (p *PaperBroker) Submit(in model.OrderIntent) {
	p.mu.Lock()
	p.queued = append(p.queued, in)
	p.mu.Unlock()
	p.log.Debug().Str("intent", in.ID).Str("symbol", in.Symbol).Str("side", string(in.Side)).Msg("queued")
}

// Pending returns how many intents await execution.
func (p *PaperBroker) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queued)
}

// Fills returns a snapshot of all fills.
func (p *PaperBroker) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// OnTick executes queued intents whose instrument has a bar in tk, then
// marks every position to the tick's closes and samples the equity curve.
func (p *PaperBroker) OnTick(tk replay.Tick) []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()

	bars := make(map[string]model.Bar, len(tk.Bars))
	for _, b := range tk.Bars {
		bars[b.Symbol] = b
	}

	var out []model.Notification
	keep := p.queued[:0]
	for _, in := range p.queued {
		b, ok := bars[in.Symbol]
		if !ok {
			keep = append(keep, in)
			continue
		}
		out = append(out, p.execute(in, b))
	}
	p.queued = keep

	for _, b := range tk.Bars {
		p.pf.Mark(b.Symbol, decimal.NewFromFloat(b.Close))
	}
	p.pf.RecordEquity()
	return out
}

func (p *PaperBroker) execute(in model.OrderIntent, b model.Bar) model.Notification {
	n := model.Notification{IntentID: in.ID, Symbol: in.Symbol, Side: in.Side, Time: b.Time}
	price := decimal.NewFromFloat(b.Open)

	var (
		tr  portfolio.Trade
		err error
	)
	switch in.Side {
	case model.SideBuy:
		qty := p.size(price)
		if qty < 1 {
			n.Status, n.Message = model.StatusMargin, "cash below one share"
			break
		}
		if p.risk != nil {
			if ok, why := p.risk.CanBuy(in.Symbol, qty, price); !ok {
				n.Status, n.Message = model.StatusRejected, why
				break
			}
		}
		tr, err = p.pf.Buy(in.Symbol, qty, price, b.Time)
		if errors.Is(err, portfolio.ErrInsufficientCash) {
			n.Status, n.Message = model.StatusMargin, err.Error()
		} else if err != nil {
			n.Status, n.Message = model.StatusRejected, err.Error()
		}
	case model.SideSell:
		tr, err = p.pf.Sell(in.Symbol, 0, price, b.Time)
		if err != nil {
			n.Status, n.Message = model.StatusRejected, err.Error()
		}
	default:
		n.Status, n.Message = model.StatusRejected, fmt.Sprintf("unknown side %q", in.Side)
	}

	if n.Status != "" {
		p.log.Warn().Str("intent", in.ID).Str("symbol", in.Symbol).Str("status", string(n.Status)).Str("why", n.Message).Msg("order not filled")
		return n
	}

	n.Status = model.StatusFilled
	n.Price, _ = price.Float64()
	n.Qty = tr.Qty

	f := Fill{
		OrderID:    in.ID,
		Symbol:     in.Symbol,
		Side:       in.Side,
		Reason:     in.Reason,
		Qty:        tr.Qty,
		Price:      price,
		Commission: tr.Commission,
		Realized:   tr.Realized,
		DecidedAt:  in.Time,
		FilledAt:   b.Time,
	}
	p.fills = append(p.fills, f)
	if p.journal != nil {
		if err := p.journal.RecordFill(f); err != nil {
			p.log.Error().Err(err).Str("intent", in.ID).Msg("journal fill")
		}
	}
	p.log.Info().
		Str("intent", in.ID).
		Str("symbol", in.Symbol).
		Str("side", string(in.Side)).
		Str("reason", string(in.Reason)).
		Int64("qty", tr.Qty).
		Str("price", price.StringFixed(2)).
		Msg("filled")
	return n
}

// size returns how many shares the next entry buys at price.
func (p *PaperBroker) size(price decimal.Decimal) int64 {
	if p.cfg.PositionPct <= 0 {
		return p.cfg.Size
	}
	if !price.IsPositive() {
		return 0
	}
	budget := p.pf.Cash().Mul(decimal.NewFromFloat(p.cfg.PositionPct))
	perShare := price.Add(price.Mul(p.pf.Commission()))
	return budget.Div(perShare).Floor().IntPart()
}

// Close cancels every intent still queued.
func (p *PaperBroker) Close() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Notification, 0, len(p.queued))
	for _, in := range p.queued {
		out = append(out, model.Notification{
			IntentID: in.ID,
			Symbol:   in.Symbol,
			Side:     in.Side,
			Status:   model.StatusCanceled,
			Time:     in.Time,
			Message:  "run ended before the order could fill",
		})
	}
	if len(out) > 0 {
		p.log.Info().Int("canceled", len(out)).Msg("outstanding orders canceled")
	}
	p.queued = p.queued[:0]
	return out
}
