// Package portfolio tracks cash, positions, P&L and portfolio-level metrics
// for the simulated broker.
//
// Money is held in shopspring/decimal so commission and P&L sums do not
// accumulate float error over long replays.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCash is returned when a buy costs more than available cash.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrNoPosition is returned when selling an instrument that is not held.
	ErrNoPosition = errors.New("no position")
)

// Position represents a single long instrument position.
type Position struct {
	Symbol    string          `json:"symbol"`
	Qty       int64           `json:"qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`  // average cost per share, commission included
	LastPrice decimal.Decimal `json:"last_price"` // last marked price
}

// MarketValue returns qty × last price.
func (p *Position) MarketValue() decimal.Decimal {
	return p.LastPrice.Mul(decimal.NewFromInt(p.Qty))
}

// UnrealizedPnL returns (last − avg) × qty.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.LastPrice.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Qty))
}

// Portfolio holds cash and open positions and tracks the equity curve.
type Portfolio struct {
	mu         sync.RWMutex
	startCash  decimal.Decimal
	cash       decimal.Decimal
	commission decimal.Decimal
	positions  map[string]*Position
	pnl        *PnLTracker

	peakEquity  decimal.Decimal
	maxDrawdown decimal.Decimal // fraction of peak, 0..1
}

// New creates a Portfolio with starting cash and a proportional commission
// rate (0.0005 = 5 bps per side).
func New(startingCash, commissionRate decimal.Decimal) *Portfolio {
	return &Portfolio{
		startCash:  startingCash,
		cash:       startingCash,
		commission: commissionRate,
		positions:  make(map[string]*Position),
		pnl:        NewPnLTracker(),
		peakEquity: startingCash,
	}
}

// Cash returns available cash.
func (pf *Portfolio) Cash() decimal.Decimal {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.cash
}

// Commission returns the commission rate.
func (pf *Portfolio) Commission() decimal.Decimal { return pf.commission }

// CostOf returns what buying qty at price would cost including commission.
func (pf *Portfolio) CostOf(qty int64, price decimal.Decimal) decimal.Decimal {
	gross := price.Mul(decimal.NewFromInt(qty))
	return gross.Add(gross.Mul(pf.commission))
}

// Buy opens or adds to a position.
func (pf *Portfolio) Buy(symbol string, qty int64, price decimal.Decimal, ts time.Time) (Trade, error) {
	if qty <= 0 {
		return Trade{}, fmt.Errorf("buy %s: qty must be positive, got %d", symbol, qty)
	}
	if !price.IsPositive() {
		return Trade{}, fmt.Errorf("buy %s: price must be positive, got %s", symbol, price)
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	cost := pf.CostOf(qty, price)
	if cost.GreaterThan(pf.cash) {
		return Trade{}, fmt.Errorf("%w: %s needs %s, have %s", ErrInsufficientCash, symbol, cost.StringFixed(2), pf.cash.StringFixed(2))
	}
	pf.cash = pf.cash.Sub(cost)

	pos, ok := pf.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		pf.positions[symbol] = pos
	}
	// weighted average cost
	total := pos.AvgPrice.Mul(decimal.NewFromInt(pos.Qty)).Add(cost)
	pos.Qty += qty
	pos.AvgPrice = total.Div(decimal.NewFromInt(pos.Qty))
	pos.LastPrice = price

	tr := Trade{Symbol: symbol, Side: SideBuy, Qty: qty, Price: price, Commission: cost.Sub(price.Mul(decimal.NewFromInt(qty))), Time: ts}
	pf.pnl.Record(tr, decimal.Zero)
	return tr, nil
}

// Sell closes up to qty shares of an open position; qty <= 0 sells all.
func (pf *Portfolio) Sell(symbol string, qty int64, price decimal.Decimal, ts time.Time) (Trade, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok || pos.Qty == 0 {
		return Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if qty <= 0 || qty > pos.Qty {
		qty = pos.Qty
	}
	gross := price.Mul(decimal.NewFromInt(qty))
	fee := gross.Mul(pf.commission)
	proceeds := gross.Sub(fee)
	realized := proceeds.Sub(pos.AvgPrice.Mul(decimal.NewFromInt(qty)))

	pf.cash = pf.cash.Add(proceeds)
	pos.Qty -= qty
	pos.LastPrice = price
	if pos.Qty == 0 {
		delete(pf.positions, symbol)
	}

	tr := Trade{Symbol: symbol, Side: SideSell, Qty: qty, Price: price, Commission: fee, Realized: realized, Time: ts}
	pf.pnl.Record(tr, realized)
	return tr, nil
}

// Mark updates an open position's last price. Unknown symbols are ignored.
func (pf *Portfolio) Mark(symbol string, price decimal.Decimal) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok {
		pos.LastPrice = price
	}
}

// Position returns a copy of the open position for symbol.
func (pf *Portfolio) Position(symbol string) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a snapshot of all positions, sorted by symbol.
func (pf *Portfolio) Positions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenPositions returns the number of instruments held.
func (pf *Portfolio) OpenPositions() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// Equity returns cash plus the marked value of every position.
func (pf *Portfolio) Equity() decimal.Decimal {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.equityLocked()
}

func (pf *Portfolio) equityLocked() decimal.Decimal {
	eq := pf.cash
	for _, p := range pf.positions {
		eq = eq.Add(p.MarketValue())
	}
	return eq
}

// RecordEquity samples the equity curve; call once per tick after marking.
// It returns the current drawdown as a fraction of the running peak.
func (pf *Portfolio) RecordEquity() decimal.Decimal {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	eq := pf.equityLocked()
	if eq.GreaterThan(pf.peakEquity) {
		pf.peakEquity = eq
	}
	dd := decimal.Zero
	if pf.peakEquity.IsPositive() {
		dd = pf.peakEquity.Sub(eq).Div(pf.peakEquity)
	}
	if dd.GreaterThan(pf.maxDrawdown) {
		pf.maxDrawdown = dd
	}
	return dd
}

// Drawdown returns the current drawdown from the recorded peak equity.
func (pf *Portfolio) Drawdown() decimal.Decimal {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if !pf.peakEquity.IsPositive() {
		return decimal.Zero
	}
	dd := pf.peakEquity.Sub(pf.equityLocked()).Div(pf.peakEquity)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// Summary returns the run statistics.
func (pf *Portfolio) Summary() Summary {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	final := pf.equityLocked()
	ret := decimal.Zero
	if pf.startCash.IsPositive() {
		ret = final.Sub(pf.startCash).Div(pf.startCash)
	}
	st := pf.pnl.Stats()
	return Summary{
		StartValue:     pf.startCash,
		FinalValue:     final,
		TotalReturn:    ret,
		MaxDrawdown:    pf.maxDrawdown,
		RealizedPnL:    st.RealizedPnL,
		Trades:         st.Trades,
		RoundTrips:     st.RoundTrips,
		Won:            st.Won,
		Lost:           st.Lost,
		OpenPositions:  len(pf.positions),
		CommissionPaid: st.Commission,
	}
}

// Trades returns every executed trade in order.
func (pf *Portfolio) Trades() []Trade { return pf.pnl.Trades() }
