package indicator

import "math"

// Tail returns the last n values of series, or nil if series is shorter than n.
// The returned slice aliases series.
func Tail(series []float64, n int) []float64 {
	if n <= 0 || len(series) < n {
		return nil
	}
	return series[len(series)-n:]
}

// Mean returns the arithmetic mean of all values. ok is false for an empty series.
func Mean(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series)), true
}

// MovingAverage returns the arithmetic mean of the last period values.
func MovingAverage(series []float64, period int) (float64, bool) {
	return Mean(Tail(series, period))
}

// StdDev returns the population standard deviation of the last period values.
func StdDev(series []float64, period int) (float64, bool) {
	w := Tail(series, period)
	mean, ok := Mean(w)
	if !ok {
		return 0, false
	}
	ss := 0.0
	for _, v := range w {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(w))), true
}

// LinearSlope returns the slope of an ordinary least-squares fit of the last
// window values against the index 0..window-1. window must be at least 2.
func LinearSlope(series []float64, window int) (float64, bool) {
	if window < 2 {
		return 0, false
	}
	w := Tail(series, window)
	if w == nil {
		return 0, false
	}
	n := float64(window)
	xMean := (n - 1) / 2
	yMean, _ := Mean(w)

	var num, den float64
	for i, y := range w {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	return num / den, true
}

// Highest returns the maximum of the last n values.
func Highest(series []float64, n int) (float64, bool) {
	w := Tail(series, n)
	if w == nil {
		return 0, false
	}
	m := w[0]
	for _, v := range w[1:] {
		if v > m {
			m = v
		}
	}
	return m, true
}

// Lowest returns the minimum of the last n values.
func Lowest(series []float64, n int) (float64, bool) {
	w := Tail(series, n)
	if w == nil {
		return 0, false
	}
	m := w[0]
	for _, v := range w[1:] {
		if v < m {
			m = v
		}
	}
	return m, true
}

// RollingMeans returns the moving average of every full period-length window
// in series; the result has len(series)-period+1 values, oldest first.
func RollingMeans(series []float64, period int) []float64 {
	if period < 1 || len(series) < period {
		return nil
	}
	out := make([]float64, 0, len(series)-period+1)
	sma := NewSMA(period)
	for _, v := range series {
		sma.Update(v)
		if sma.Ready() {
			out = append(out, sma.Value())
		}
	}
	return out
}
