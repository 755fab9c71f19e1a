package portfolio

import (
	"github.com/shopspring/decimal"
)

// RiskLimits defines configurable risk management thresholds.
// Zero values disable the corresponding check.
type RiskLimits struct {
	MaxOpenPositions int     `yaml:"max_open_positions" json:"max_open_positions"`
	MaxPositionValue float64 `yaml:"max_position_value" json:"max_position_value"` // per instrument, in account currency
	MaxDrawdownPct   float64 `yaml:"max_drawdown_pct" json:"max_drawdown_pct"`     // 0-100; blocks new entries once breached
}

// DefaultRiskLimits returns permissive defaults: ten concurrent positions,
// no value cap, entries blocked after a 50% drawdown.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOpenPositions: 10,
		MaxDrawdownPct:   50,
	}
}

// RiskManager validates new entries against risk limits.
type RiskManager struct {
	limits    RiskLimits
	portfolio *Portfolio
}

// NewRiskManager creates a RiskManager over pf.
func NewRiskManager(limits RiskLimits, pf *Portfolio) *RiskManager {
	return &RiskManager{limits: limits, portfolio: pf}
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits { return rm.limits }

// CanBuy checks if buying qty of symbol at price would violate any limit.
// Returns true if the trade is allowed, false with a reason if not.
func (rm *RiskManager) CanBuy(symbol string, qty int64, price decimal.Decimal) (bool, string) {
	_, held := rm.portfolio.Position(symbol)

	if rm.limits.MaxOpenPositions > 0 && !held && rm.portfolio.OpenPositions() >= rm.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}

	if rm.limits.MaxPositionValue > 0 {
		value := price.Mul(decimal.NewFromInt(qty))
		if value.GreaterThan(decimal.NewFromFloat(rm.limits.MaxPositionValue)) {
			return false, "position value exceeds limit"
		}
	}

	if rm.limits.MaxDrawdownPct > 0 {
		dd := rm.portfolio.Summary().MaxDrawdown.Mul(decimal.NewFromInt(100))
		if dd.GreaterThan(decimal.NewFromFloat(rm.limits.MaxDrawdownPct)) {
			return false, "max drawdown exceeded"
		}
	}

	return true, ""
}
