package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bar is one OHLCV bar for a single instrument.
// Aux carries the aligned market-index close used for relative strength;
// HasAux is false when no index value was available for this timestamp.
type Bar struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Aux    float64   `json:"aux,omitempty"`
	HasAux bool      `json:"has_aux,omitempty"`
}

// ErrMalformedBar is returned for bars with missing or inconsistent OHLCV fields.
var ErrMalformedBar = errors.New("malformed bar")

// Validate checks that every OHLCV field is a finite, non-negative number
// and that the high/low range is consistent.
func (b *Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("%w: %s: zero timestamp", ErrMalformedBar, b.Symbol)
	}
	for _, f := range [...]struct {
		name string
		v    float64
	}{
		{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}, {"volume", b.Volume},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%w: %s@%s: %s=%v", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339), f.name, f.v)
		}
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: %s@%s: high %.4f < low %.4f", ErrMalformedBar, b.Symbol, b.Time.Format(time.RFC3339), b.High, b.Low)
	}
	return nil
}

// TypicalPrice returns (H+L+C)/3.
func (b *Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3
}
