package signal

import "swingtrader/internal/indicator"

// DefaultRSLength is the zero-line moving average length.
const DefaultRSLength = 52

// Mansfield is a streaming Mansfield relative strength oscillator:
//
//	ratio     = 100 × close / marketClose
//	zero line = SMA(ratio, maLength)
//	output    = 100 × (ratio / zero line − 1)
type Mansfield struct {
	zero *indicator.SMA
}

// NewMansfield creates the oscillator. maLength < 1 selects DefaultRSLength.
func NewMansfield(maLength int) *Mansfield {
	if maLength < 1 {
		maLength = DefaultRSLength
	}
	return &Mansfield{zero: indicator.NewSMA(maLength)}
}

// Update folds in one bar. Bars without a positive market close are skipped
// and report not ready; they do not enter the zero line.
func (m *Mansfield) Update(close, marketClose float64, hasMarket bool) Strength {
	if !hasMarket || marketClose <= 0 {
		return Strength{}
	}
	ratio := 100 * close / marketClose
	m.zero.Update(ratio)
	return m.reading(ratio)
}

func (m *Mansfield) reading(ratio float64) Strength {
	if !m.zero.Ready() || m.zero.Value() == 0 {
		return Strength{}
	}
	return Strength{Ready: true, Value: 100 * (ratio/m.zero.Value() - 1)}
}

// MansfieldRS computes the oscillator for the last bar of aligned close and
// market series.
func MansfieldRS(closes, market []float64, maLength int) Strength {
	if len(closes) != len(market) {
		return Strength{}
	}
	m := NewMansfield(maLength)
	var s Strength
	for i := range closes {
		s = m.Update(closes[i], market[i], true)
	}
	return s
}
