// Package signal evaluates the four entry conditions of the swing methodology
// for one instrument at one bar: Trend Template, Mansfield relative strength,
// volatility contraction pattern (VCP) and volume-confirmed breakout.
//
// Every evaluator distinguishes "not ready" (too little history) from a
// false verdict. The combined entry condition is false whenever any
// component is not ready.
package signal

import "time"

// Verdict is a boolean condition that may not yet be computable.
type Verdict struct {
	Ready bool `json:"ready"`
	OK    bool `json:"ok"`
}

// Pass reports whether the condition is computable and holds.
func (v Verdict) Pass() bool { return v.Ready && v.OK }

func notReady() Verdict       { return Verdict{} }
func verdict(ok bool) Verdict { return Verdict{Ready: true, OK: ok} }

// Strength is a continuous reading that may not yet be computable.
type Strength struct {
	Ready bool    `json:"ready"`
	Value float64 `json:"value"`
}

// AtLeast reports whether the reading is computable and >= threshold.
func (s Strength) AtLeast(threshold float64) bool { return s.Ready && s.Value >= threshold }

// Snapshot is the full signal state of one instrument at one bar.
// It is derived per bar and never persisted by the engine itself.
type Snapshot struct {
	Symbol   string    `json:"symbol"`
	Time     time.Time `json:"time"`
	Close    float64   `json:"close"`
	Trend    Verdict   `json:"trend"`
	RS       Strength  `json:"rs"`
	VCP      Verdict   `json:"vcp"`
	Breakout Verdict   `json:"breakout"`

	// Session VWAP is informational; it does not gate entries.
	VWAP      float64 `json:"vwap"`
	VWAPReady bool    `json:"vwap_ready"`
}

// Ready reports whether every gating component has enough data.
func (s *Snapshot) Ready() bool {
	return s.Trend.Ready && s.RS.Ready && s.VCP.Ready && s.Breakout.Ready
}

// Entry is the combined entry condition:
// trend AND rs >= threshold AND vcp AND breakout.
func (s *Snapshot) Entry(rsThreshold float64) bool {
	return s.Trend.Pass() && s.RS.AtLeast(rsThreshold) && s.VCP.Pass() && s.Breakout.Pass()
}
