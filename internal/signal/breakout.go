package signal

import "swingtrader/internal/indicator"

const (
	// BreakoutHighBars is how many prior closes form the resistance level.
	BreakoutHighBars = 20
	// BreakoutVolumeBars is how many prior volumes form the average.
	BreakoutVolumeBars = 5
	// BreakoutMinBars is the history needed for both windows plus the current bar.
	BreakoutMinBars = BreakoutHighBars + 2

	// DefaultVolumeMultiplier is the volume confirmation factor.
	DefaultVolumeMultiplier = 1.5
)

// Breakout reports whether the latest close clears the highest of the
// previous BreakoutHighBars closes on volume above multiplier × the average
// of the previous BreakoutVolumeBars volumes. The current bar is excluded
// from both reference windows.
func Breakout(closes, volumes []float64, multiplier float64) Verdict {
	n := len(closes)
	if n < BreakoutMinBars || len(volumes) != n {
		return notReady()
	}
	prior := closes[:n-1]
	resistance, _ := indicator.Highest(prior, BreakoutHighBars)
	avgVol, _ := indicator.MovingAverage(volumes[:n-1], BreakoutVolumeBars)

	return verdict(closes[n-1] > resistance && volumes[n-1] > avgVol*multiplier)
}
