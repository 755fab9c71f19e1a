package signal

import (
	"fmt"

	"swingtrader/internal/indicator"
)

// TrendVariant selects which Trend Template condition set is applied.
type TrendVariant string

const (
	// TrendFull requires all seven conditions.
	TrendFull TrendVariant = "full"
	// TrendSimplified requires only conditions 2, 3, 4 and 7.
	TrendSimplified TrendVariant = "simplified"
)

// ParseTrendVariant validates a variant name; "" selects TrendFull.
func ParseTrendVariant(s string) (TrendVariant, error) {
	switch TrendVariant(s) {
	case "", TrendFull:
		return TrendFull, nil
	case TrendSimplified:
		return TrendSimplified, nil
	}
	return "", fmt.Errorf("unknown trend variant %q", s)
}

const (
	// TrendMinBars is the history the template needs before it is ready.
	TrendMinBars = 200
	// TrendSlopeBars is how many SMA200 values the slope test regresses over.
	TrendSlopeBars = 20
	// TrendFullHistory is the history at which condition 7 becomes computable.
	TrendFullHistory = TrendMinBars + TrendSlopeBars - 1
)

// TrendConditions holds the individual results; index 0 is condition 1.
type TrendConditions [7]bool

// TrendTemplate evaluates the trend template on the latest close.
//
//  1. close > SMA150 and close > SMA200
//  2. SMA150 > SMA200
//  3. SMA50 > SMA150 and SMA50 > SMA200
//  4. close > SMA50
//  5. close >= 0.75 × highest close of the last 200 bars
//  6. close >= 1.30 × lowest close of the last 200 bars
//  7. slope of the last 20 SMA200 values > 0
//
// Condition 7 is false until TrendFullHistory closes are available.
func TrendTemplate(closes []float64, variant TrendVariant) (Verdict, TrendConditions) {
	var c TrendConditions
	if len(closes) < TrendMinBars {
		return notReady(), c
	}

	close := closes[len(closes)-1]
	sma50, _ := indicator.MovingAverage(closes, 50)
	sma150, _ := indicator.MovingAverage(closes, 150)
	sma200, _ := indicator.MovingAverage(closes, 200)
	hi, _ := indicator.Highest(closes, TrendMinBars)
	lo, _ := indicator.Lowest(closes, TrendMinBars)

	c[0] = close > sma150 && close > sma200
	c[1] = sma150 > sma200
	c[2] = sma50 > sma150 && sma50 > sma200
	c[3] = close > sma50
	c[4] = close >= hi*0.75
	c[5] = close >= lo*1.3

	if len(closes) >= TrendFullHistory {
		series := indicator.RollingMeans(indicator.Tail(closes, TrendFullHistory), TrendMinBars)
		slope, ok := indicator.LinearSlope(series, TrendSlopeBars)
		c[6] = ok && slope > 0
	}

	if variant == TrendSimplified {
		return verdict(c[1] && c[2] && c[3] && c[6]), c
	}
	all := true
	for _, ok := range c {
		all = all && ok
	}
	return verdict(all), c
}
