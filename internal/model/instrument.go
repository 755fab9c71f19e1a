package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfOrderBar is returned when a bar's timestamp does not strictly
// increase over the previous bar of the same instrument.
var ErrOutOfOrderBar = errors.New("out-of-order bar")

// Instrument is a tradeable symbol together with its ordered bar history.
type Instrument struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Validate checks every bar and enforces strictly increasing timestamps.
func (i *Instrument) Validate() error {
	var prev time.Time
	for k := range i.Bars {
		b := &i.Bars[k]
		if err := b.Validate(); err != nil {
			return err
		}
		if k > 0 && !b.Time.After(prev) {
			return fmt.Errorf("%w: %s bar %d at %s not after %s",
				ErrOutOfOrderBar, i.Symbol, k, b.Time.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = b.Time
	}
	return nil
}

// Len returns the number of bars.
func (i *Instrument) Len() int { return len(i.Bars) }
