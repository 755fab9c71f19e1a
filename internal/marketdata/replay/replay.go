// Package replay merges historical per-instrument bar streams into
// timestamp-ordered ticks and emits them at a configurable speed for
// backtesting.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"swingtrader/internal/model"
)

// Tick is one synchronized step: every instrument bar sharing Time.
// Bars are in the order the instruments were given to the Replayer.
type Tick struct {
	Time time.Time
	Bars []model.Bar
}

// Replayer walks several instrument streams in lockstep.
type Replayer struct {
	instruments []model.Instrument
	speed       float64
	log         zerolog.Logger
}

// New creates a Replayer. speed controls pacing between ticks:
// 1.0 = real time, 10.0 = 10x, 0 = as fast as possible.
func New(instruments []model.Instrument, speed float64, log zerolog.Logger) *Replayer {
	return &Replayer{instruments: instruments, speed: speed, log: log.With().Str("component", "replay").Logger()}
}

// Run emits ticks into out and closes it when the streams are exhausted or
// ctx is cancelled.
//
// Streams are merged by cursor, never re-sorted: a bar that goes backwards
// in time is emitted in its own earlier tick so the consumer can detect it.
func (r *Replayer) Run(ctx context.Context, out chan<- Tick) error {
	defer close(out)

	cursors := make([]int, len(r.instruments))
	total := 0
	for _, in := range r.instruments {
		total += len(in.Bars)
	}
	r.log.Info().Int("instruments", len(r.instruments)).Int("bars", total).Float64("speed", r.speed).Msg("replay starting")

	var prevTS time.Time
	emitted := 0
	for {
		tick, ok := r.next(cursors)
		if !ok {
			break
		}

		// Simulate time gaps between ticks
		if r.speed > 0 && !prevTS.IsZero() {
			if gap := tick.Time.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				// Cap max sleep to avoid very long waits
				if scaled > 5*time.Second {
					scaled = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = tick.Time

		select {
		case <-ctx.Done():
			r.log.Warn().Int("ticks", emitted).Msg("replay cancelled")
			return ctx.Err()
		case out <- tick:
		}
		emitted++
	}

	r.log.Info().Int("ticks", emitted).Msg("replay completed")
	return nil
}

// next collects the head bar of every stream whose head has the earliest
// timestamp and advances those cursors.
func (r *Replayer) next(cursors []int) (Tick, bool) {
	var earliest time.Time
	found := false
	for i, in := range r.instruments {
		if cursors[i] >= len(in.Bars) {
			continue
		}
		ts := in.Bars[cursors[i]].Time
		if !found || ts.Before(earliest) {
			earliest = ts
			found = true
		}
	}
	if !found {
		return Tick{}, false
	}

	tick := Tick{Time: earliest}
	for i, in := range r.instruments {
		if cursors[i] >= len(in.Bars) {
			continue
		}
		b := in.Bars[cursors[i]]
		if !b.Time.Equal(earliest) {
			continue
		}
		if b.Symbol == "" {
			b.Symbol = in.Symbol
		}
		tick.Bars = append(tick.Bars, b)
		cursors[i]++
	}
	return tick, true
}

// AlignAux returns a copy of bars with Aux set to the close of the most
// recent index bar at or before each bar's time (forward fill). Bars that
// precede the first index bar keep HasAux false.
func AlignAux(bars, index []model.Bar) []model.Bar {
	out := make([]model.Bar, len(bars))
	j := -1
	for i, b := range bars {
		for j+1 < len(index) && !index[j+1].Time.After(b.Time) {
			j++
		}
		if j >= 0 {
			b.Aux = index[j].Close
			b.HasAux = true
		} else {
			b.Aux, b.HasAux = 0, false
		}
		out[i] = b
	}
	return out
}
