package model

import "time"

// Side is the direction of an order intent.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reason explains why an order intent was emitted.
type Reason string

const (
	ReasonEntry        Reason = "entry"
	ReasonStopLoss     Reason = "stop_loss"
	ReasonTrailingStop Reason = "trailing_stop"
	ReasonSessionEnd   Reason = "session_end"
)

// OrderIntent is a market order request emitted by the controller for the
// broker layer. ID is the identity fill notifications are matched against.
type OrderIntent struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Reason Reason    `json:"reason"`
	Price  float64   `json:"price"` // decision-time close
	Time   time.Time `json:"time"`  // bar that produced the decision
}

// FillStatus is the terminal state reported by the broker for an intent.
type FillStatus string

const (
	StatusFilled   FillStatus = "FILLED"
	StatusRejected FillStatus = "REJECTED"
	StatusCanceled FillStatus = "CANCELED"
	StatusMargin   FillStatus = "MARGIN"
)

// Notification reports the outcome of an order intent back to the engine.
type Notification struct {
	IntentID string     `json:"intent_id"`
	Symbol   string     `json:"symbol"`
	Side     Side       `json:"side"`
	Status   FillStatus `json:"status"`
	Price    float64    `json:"price"` // executed price, 0 unless filled
	Qty      int64      `json:"qty"`
	Time     time.Time  `json:"time"`
	Message  string     `json:"message,omitempty"`
}

// Filled reports whether the notification is a completed execution.
func (n *Notification) Filled() bool { return n.Status == StatusFilled }
