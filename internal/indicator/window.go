package indicator

import (
	"fmt"

	"swingtrader/internal/model"
)

// Window is a bounded trailing window over one instrument's bars.
// It is the rolling Indicator State the evaluators read from: the most recent
// Depth() bars, oldest first. Storage is a circular buffer sized to a power
// of two so indexing is a mask rather than a modulo.
//
// Not safe for concurrent use; each instrument owns its own Window.
type Window struct {
	buf   []model.Bar
	mask  int
	depth int
	head  int // total bars pushed
}

// NewWindow creates a window holding the last depth bars. depth < 1 is treated as 1.
func NewWindow(depth int) *Window {
	if depth < 1 {
		depth = 1
	}
	size := nextPow2(depth)
	return &Window{
		buf:   make([]model.Bar, size),
		mask:  size - 1,
		depth: depth,
	}
}

// Push appends a bar. Malformed bars and bars whose timestamp does not
// strictly increase are rejected and leave the window unchanged.
func (w *Window) Push(b model.Bar) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if w.head > 0 {
		last := w.buf[(w.head-1)&w.mask]
		if !b.Time.After(last.Time) {
			return fmt.Errorf("%w: %s %s not after %s", model.ErrOutOfOrderBar,
				b.Symbol, b.Time.Format("2006-01-02T15:04:05"), last.Time.Format("2006-01-02T15:04:05"))
		}
	}
	w.buf[w.head&w.mask] = b
	w.head++
	return nil
}

// Len returns the number of bars currently held (at most Depth()).
func (w *Window) Len() int {
	if w.head < w.depth {
		return w.head
	}
	return w.depth
}

// Depth returns the window capacity.
func (w *Window) Depth() int { return w.depth }

// Count returns the total number of bars ever pushed.
func (w *Window) Count() int { return w.head }

// Last returns the most recent bar.
func (w *Window) Last() (model.Bar, bool) {
	if w.head == 0 {
		return model.Bar{}, false
	}
	return w.buf[(w.head-1)&w.mask], true
}

// At returns the i-th held bar, 0 being the oldest.
func (w *Window) At(i int) model.Bar {
	start := w.head - w.Len()
	return w.buf[(start+i)&w.mask]
}

// Closes returns the held closes, oldest first.
func (w *Window) Closes() []float64 { return w.series(func(b *model.Bar) float64 { return b.Close }) }

// Highs returns the held highs, oldest first.
func (w *Window) Highs() []float64 { return w.series(func(b *model.Bar) float64 { return b.High }) }

// Lows returns the held lows, oldest first.
func (w *Window) Lows() []float64 { return w.series(func(b *model.Bar) float64 { return b.Low }) }

// Volumes returns the held volumes, oldest first.
func (w *Window) Volumes() []float64 { return w.series(func(b *model.Bar) float64 { return b.Volume }) }

func (w *Window) series(field func(*model.Bar) float64) []float64 {
	n := w.Len()
	out := make([]float64, n)
	start := w.head - n
	for i := 0; i < n; i++ {
		out[i] = field(&w.buf[(start+i)&w.mask])
	}
	return out
}

// Reset drops every held bar.
func (w *Window) Reset() {
	w.head = 0
	for i := range w.buf {
		w.buf[i] = model.Bar{}
	}
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
