package indicator

import (
	"time"

	"swingtrader/internal/model"
)

// SessionBoundary reports whether cur starts a new session relative to prev.
// markethours.Calendar.NewSession is the usual implementation.
type SessionBoundary func(prev, cur time.Time) bool

// SessionVWAP is a cumulative volume-weighted average of the typical price
// (H+L+C)/3 that resets at every session boundary.
type SessionVWAP struct {
	boundary SessionBoundary

	started  bool
	prevTime time.Time
	cumPV    float64
	cumVol   float64
	current  float64
}

// NewSessionVWAP creates a VWAP accumulator. A nil boundary never resets.
func NewSessionVWAP(boundary SessionBoundary) *SessionVWAP {
	return &SessionVWAP{boundary: boundary}
}

// Update folds bar b into the accumulator and returns the new VWAP.
// When cumulative session volume is zero the previous VWAP is carried
// forward; on the very first bar the bar's close is used instead.
func (v *SessionVWAP) Update(b model.Bar) float64 {
	if !v.started || (v.boundary != nil && v.boundary(v.prevTime, b.Time)) {
		v.cumPV = 0
		v.cumVol = 0
	}

	v.cumPV += b.TypicalPrice() * b.Volume
	v.cumVol += b.Volume

	switch {
	case v.cumVol > 0:
		v.current = v.cumPV / v.cumVol
	case !v.started:
		v.current = b.Close
	}

	v.started = true
	v.prevTime = b.Time
	return v.current
}

func (v *SessionVWAP) Value() float64 { return v.current }
func (v *SessionVWAP) Ready() bool    { return v.started }

// Reset clears all accumulated state.
func (v *SessionVWAP) Reset() {
	*v = SessionVWAP{boundary: v.boundary}
}

// VWAPSession computes the session VWAP for every bar of a batch series.
// All slices must have equal length; the result has one value per bar.
func VWAPSession(highs, lows, closes, volumes []float64, times []time.Time, boundary SessionBoundary) []float64 {
	n := len(closes)
	if len(highs) != n || len(lows) != n || len(volumes) != n || len(times) != n {
		return nil
	}
	acc := NewSessionVWAP(boundary)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = acc.Update(model.Bar{
			Time:   times[i],
			High:   highs[i],
			Low:    lows[i],
			Close:  closes[i],
			Volume: volumes[i],
		})
	}
	return out
}
