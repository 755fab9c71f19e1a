package model

// PositionState is the per-instrument order/position life-cycle state.
type PositionState int

const (
	Flat PositionState = iota
	PendingBuy
	Long
	PendingSell
)

func (s PositionState) String() string {
	switch s {
	case Flat:
		return "flat"
	case PendingBuy:
		return "pending_buy"
	case Long:
		return "long"
	case PendingSell:
		return "pending_sell"
	default:
		return "unknown"
	}
}

// Pending reports whether an order is outstanding in this state.
func (s PositionState) Pending() bool {
	return s == PendingBuy || s == PendingSell
}
