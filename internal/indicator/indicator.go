// Package indicator provides the numeric transforms the signal evaluators are
// built from: moving averages, dispersion, regression slope, swing points,
// session VWAP and Bollinger bands.
//
// Batch functions take a series ordered oldest→newest and operate on its
// trailing values. They return (value, ok); ok is false when the series is
// shorter than the requested period, in which case value is 0. Streaming
// indicators implement the Indicator interface and report readiness the
// same way.
package indicator

// Indicator is the interface for streaming indicators that keep their own
// accumulators and are fed one value per bar.
type Indicator interface {
	// Update feeds the next value.
	Update(v float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears all accumulated state.
	Reset()
}
