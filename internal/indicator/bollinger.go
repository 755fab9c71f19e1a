package indicator

// Bands holds one Bollinger band reading.
// PercentB is only meaningful when PercentBOK is true; a zero-width band
// leaves it at 0 instead of dividing by zero.
type Bands struct {
	Mid        float64
	Top        float64
	Bottom     float64
	Width      float64
	PercentB   float64
	PercentBOK bool
}

// Bollinger computes bands for the last close: mid = SMA(period),
// top/bottom = mid ± numDevs·σ, width = top-bottom,
// %B = (close-bottom)/(top-bottom).
func Bollinger(closes []float64, period int, numDevs float64) (Bands, bool) {
	mid, ok := MovingAverage(closes, period)
	if !ok {
		return Bands{}, false
	}
	sd, _ := StdDev(closes, period)

	b := Bands{
		Mid:    mid,
		Top:    mid + numDevs*sd,
		Bottom: mid - numDevs*sd,
	}
	b.Width = b.Top - b.Bottom
	if b.Width > 0 {
		b.PercentB = (closes[len(closes)-1] - b.Bottom) / b.Width
		b.PercentBOK = true
	}
	return b, true
}

// BollingerWidths returns the normalised band width (top-bottom)/mid for
// every full window in closes, oldest first. Windows whose mid is zero
// report a width of 0.
func BollingerWidths(closes []float64, period int, numDevs float64) []float64 {
	if period < 1 || len(closes) < period {
		return nil
	}
	out := make([]float64, 0, len(closes)-period+1)
	for end := period; end <= len(closes); end++ {
		b, _ := Bollinger(closes[:end], period, numDevs)
		w := 0.0
		if b.Mid != 0 {
			w = b.Width / b.Mid
		}
		out = append(out, w)
	}
	return out
}
