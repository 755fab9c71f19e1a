package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade represents one executed fill.
type Trade struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Qty        int64           `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Commission decimal.Decimal `json:"commission"`
	Realized   decimal.Decimal `json:"realized"` // sells only
	Time       time.Time       `json:"time"`
}

// PnLTracker accumulates realized P&L and win/loss counts.
// A sell that realizes a positive amount counts as won, negative as lost.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade

	realized   decimal.Decimal
	commission decimal.Decimal
	roundTrips int
	won        int
	lost       int
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{trades: make([]Trade, 0, 256)}
}

// Record appends a trade with its realized P&L (zero for buys).
func (p *PnLTracker) Record(tr Trade, realized decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tr.Realized = realized
	p.trades = append(p.trades, tr)
	p.commission = p.commission.Add(tr.Commission)
	if tr.Side != SideSell {
		return
	}
	p.realized = p.realized.Add(realized)
	p.roundTrips++
	switch realized.Sign() {
	case 1:
		p.won++
	case -1:
		p.lost++
	}
}

// Stats is a snapshot of the tracker's counters.
type Stats struct {
	RealizedPnL decimal.Decimal
	Commission  decimal.Decimal
	Trades      int
	RoundTrips  int
	Won         int
	Lost        int
}

// Stats returns the current counters.
func (p *PnLTracker) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		RealizedPnL: p.realized,
		Commission:  p.commission,
		Trades:      len(p.trades),
		RoundTrips:  p.roundTrips,
		Won:         p.won,
		Lost:        p.lost,
	}
}

// Trades returns a snapshot of all trades.
func (p *PnLTracker) Trades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// Summary is the end-of-run report.
type Summary struct {
	StartValue     decimal.Decimal `json:"start_value"`
	FinalValue     decimal.Decimal `json:"final_value"`
	TotalReturn    decimal.Decimal `json:"total_return"` // fraction
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"` // fraction of peak
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	CommissionPaid decimal.Decimal `json:"commission_paid"`
	Trades         int             `json:"trades"`
	RoundTrips     int             `json:"round_trips"`
	Won            int             `json:"won"`
	Lost           int             `json:"lost"`
	OpenPositions  int             `json:"open_positions"`
}
