package indicator

// SMA calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer so Update is O(1) and allocation free.
type SMA struct {
	period  int
	buf     []float64
	idx     int // next write position
	count   int // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA with the given period. period < 1 is treated as 1.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

// Period returns the window length.
func (s *SMA) Period() int { return s.period }

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		// Recompute from the buffer every full cycle to stop float drift.
		if s.idx == 0 {
			s.sum = 0
			for _, x := range s.buf {
				s.sum += x
			}
		}
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Peek computes what Value() would be if v were added next, without mutating state.
func (s *SMA) Peek(v float64) float64 {
	if s.count < s.period {
		return (s.sum + v) / float64(s.count+1)
	}
	return (s.sum - s.buf[s.idx] + v) / float64(s.period)
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
