package signal

import (
	"fmt"

	"swingtrader/internal/indicator"
)

// VCPVariant selects the contraction detector.
type VCPVariant string

const (
	// VCPSwing measures successive swing-to-swing ranges.
	VCPSwing VCPVariant = "swing"
	// VCPBand measures per-segment volatility plus a Bollinger squeeze.
	VCPBand VCPVariant = "band"
)

// ParseVCPVariant validates a variant name; "" selects VCPSwing.
func ParseVCPVariant(s string) (VCPVariant, error) {
	switch VCPVariant(s) {
	case "", VCPSwing:
		return VCPSwing, nil
	case VCPBand:
		return VCPBand, nil
	}
	return "", fmt.Errorf("unknown vcp variant %q", s)
}

// VCPParams tunes both detectors.
type VCPParams struct {
	// swing variant
	Lookback        int     `yaml:"lookback"`
	SwingSeparation int     `yaml:"swing_separation"`
	MinSwingPoints  int     `yaml:"min_swing_points"`
	MinContractions int     `yaml:"min_contractions"`
	Threshold       float64 `yaml:"-"` // set from the strategy's vcp_threshold
	VolumeLookback  int     `yaml:"volume_lookback"`

	// band variant
	Segments         int     `yaml:"segments"`
	SegmentLength    int     `yaml:"segment_length"`
	MaxSegmentGrowth float64 `yaml:"max_segment_growth"`
	SqueezeLookback  int     `yaml:"squeeze_lookback"`
	BandPeriod       int     `yaml:"band_period"`
	BandDevs         float64 `yaml:"band_devs"`
}

// DefaultVCPParams returns the standard detector settings.
func DefaultVCPParams() VCPParams {
	return VCPParams{
		Lookback:         100,
		SwingSeparation:  7,
		MinSwingPoints:   3,
		MinContractions:  3,
		Threshold:        0.10,
		VolumeLookback:   50,
		Segments:         3,
		SegmentLength:    10,
		MaxSegmentGrowth: 1.1,
		SqueezeLookback:  30,
		BandPeriod:       20,
		BandDevs:         2,
	}
}

// Validate rejects settings the detectors cannot run with.
func (p VCPParams) Validate() error {
	switch {
	case p.Lookback < 3:
		return fmt.Errorf("vcp lookback must be >= 3, got %d", p.Lookback)
	case p.SwingSeparation < 1:
		return fmt.Errorf("vcp swing separation must be >= 1, got %d", p.SwingSeparation)
	case p.MinSwingPoints < 3:
		return fmt.Errorf("vcp min swing points must be >= 3, got %d", p.MinSwingPoints)
	case p.Threshold <= 0:
		return fmt.Errorf("vcp threshold must be > 0, got %v", p.Threshold)
	case p.VolumeLookback < 1:
		return fmt.Errorf("vcp volume lookback must be >= 1, got %d", p.VolumeLookback)
	case p.Segments < 2 || p.SegmentLength < 2:
		return fmt.Errorf("vcp band needs >= 2 segments of >= 2 bars, got %dx%d", p.Segments, p.SegmentLength)
	case p.SqueezeLookback < 2 || p.BandPeriod < 2:
		return fmt.Errorf("vcp squeeze lookback and band period must be >= 2")
	}
	return nil
}

// BandMinBars is the history the band variant needs before it is ready.
func (p VCPParams) BandMinBars() int {
	need := p.Segments*p.SegmentLength + 1
	if sq := p.SqueezeLookback + p.BandPeriod - 1; sq > need {
		need = sq
	}
	return need
}

// VCPDetail exposes the intermediate values of the swing detector.
type VCPDetail struct {
	SwingPoints      []int     `json:"swing_points"`
	Heights          []float64 `json:"heights"`
	ContractionCount int       `json:"contraction_count"`
	LastHeight       float64   `json:"last_height"`
	VolumeDry        bool      `json:"volume_dry"`
}

// ContractionHeights returns, for each triple of consecutive swing points
// (i−2, i−1, i), the normalised range (max high − min low) / max high over
// the bars from swing i−2 up to but excluding swing i.
func ContractionHeights(highs, lows []float64, swings []int) []float64 {
	if len(swings) < 3 {
		return nil
	}
	out := make([]float64, 0, len(swings)-2)
	for i := 2; i < len(swings); i++ {
		start, end := swings[i-2], swings[i]
		hi, _ := indicator.Highest(highs[start:end], end-start)
		lo, _ := indicator.Lowest(lows[start:end], end-start)
		if hi <= 0 {
			// degenerate price range: treat as no contraction
			out = append(out, 1)
			continue
		}
		out = append(out, (hi-lo)/hi)
	}
	return out
}

// ContractionCount counts adjacent pairs of heights where the later one is
// strictly smaller.
func ContractionCount(heights []float64) int {
	n := 0
	for i := 1; i < len(heights); i++ {
		if heights[i] < heights[i-1] {
			n++
		}
	}
	return n
}

// VCPSwingPattern detects a volatility contraction over the last Lookback
// bars using swing points found on closes.
func VCPSwingPattern(highs, lows, closes, volumes []float64, p VCPParams) (Verdict, VCPDetail) {
	var d VCPDetail
	n := len(closes)
	if n < p.Lookback || len(highs) != n || len(lows) != n || len(volumes) != n {
		return notReady(), d
	}
	highs = indicator.Tail(highs, p.Lookback)
	lows = indicator.Tail(lows, p.Lookback)
	closes = indicator.Tail(closes, p.Lookback)

	d.SwingPoints = indicator.FindSwingPoints(closes, p.SwingSeparation)
	if len(d.SwingPoints) < p.MinSwingPoints {
		return verdict(false), d
	}
	d.Heights = ContractionHeights(highs, lows, d.SwingPoints)
	d.ContractionCount = ContractionCount(d.Heights)
	if len(d.Heights) > 0 {
		d.LastHeight = d.Heights[len(d.Heights)-1]
	}

	avgVol, _ := indicator.MovingAverage(volumes, min(p.VolumeLookback, n))
	d.VolumeDry = volumes[n-1] < avgVol

	ok := len(d.Heights) > 0 &&
		d.ContractionCount >= p.MinContractions &&
		d.LastHeight < p.Threshold &&
		d.VolumeDry
	return verdict(ok), d
}

// VCPBandPattern detects contraction as non-expanding volatility across
// consecutive segments, shrinking volume, a Bollinger-width squeeze and a
// close above every segment high.
func VCPBandPattern(highs, lows, closes, volumes []float64, p VCPParams) Verdict {
	n := len(closes)
	if n < p.BandMinBars() || len(highs) != n || len(lows) != n || len(volumes) != n {
		return notReady()
	}

	// segments cover the bars before the current one, oldest first
	span := p.Segments * p.SegmentLength
	base := n - 1 - span
	stds := make([]float64, p.Segments)
	vols := make([]float64, p.Segments)
	segHigh := 0.0
	for k := 0; k < p.Segments; k++ {
		lo, hi := base+k*p.SegmentLength, base+(k+1)*p.SegmentLength
		stds[k], _ = indicator.StdDev(closes[lo:hi], p.SegmentLength)
		vols[k], _ = indicator.Mean(volumes[lo:hi])
		if h, _ := indicator.Highest(highs[lo:hi], p.SegmentLength); h > segHigh {
			segHigh = h
		}
	}

	contracting := stds[p.Segments-1] < stds[0]
	for k := 1; k < p.Segments && contracting; k++ {
		contracting = stds[k] <= stds[k-1]*p.MaxSegmentGrowth
	}
	volumeShrink := vols[p.Segments-1] < vols[0]

	widths := indicator.BollingerWidths(closes, p.BandPeriod, p.BandDevs)
	slope, ok := indicator.LinearSlope(widths, p.SqueezeLookback)
	squeeze := ok && slope < 0

	breakout := closes[n-1] > segHigh
	return verdict(contracting && volumeShrink && squeeze && breakout)
}

// VCP dispatches to the selected detector.
func VCP(variant VCPVariant, highs, lows, closes, volumes []float64, p VCPParams) Verdict {
	if variant == VCPBand {
		return VCPBandPattern(highs, lows, closes, volumes, p)
	}
	v, _ := VCPSwingPattern(highs, lows, closes, volumes, p)
	return v
}
