package signal

import (
	"math"
	"testing"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func assertNear(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.10f, want %.10f", label, got, want)
	}
}

func TestTrendTemplate_NotReadyUnder200(t *testing.T) {
	for _, n := range []int{0, 1, 150, 199} {
		v, _ := TrendTemplate(ramp(n, 100, 1), TrendFull)
		if v.Ready || v.OK {
			t.Errorf("n=%d: expected not ready, got %+v", n, v)
		}
	}
}

func TestTrendTemplate_RisingSeriesPasses(t *testing.T) {
	v, c := TrendTemplate(ramp(250, 100, 1), TrendFull)
	if !v.Pass() {
		t.Fatalf("expected pass, conditions %v", c)
	}
}

func TestTrendTemplate_SixOfSevenIsFalse(t *testing.T) {
	// Steady but shallow uptrend: the close is never 30% above the 200-bar low.
	closes := ramp(250, 1000, 1)
	v, c := TrendTemplate(closes, TrendFull)
	if !v.Ready {
		t.Fatal("expected ready")
	}
	if c[5] {
		t.Fatal("condition 6 should fail for this series")
	}
	for i, ok := range c {
		if i != 5 && !ok {
			t.Fatalf("condition %d should hold", i+1)
		}
	}
	if v.OK {
		t.Error("six of seven conditions must not pass")
	}

	// the simplified set ignores condition 6
	if s, _ := TrendTemplate(closes, TrendSimplified); !s.Pass() {
		t.Error("simplified variant should pass")
	}
}

func TestTrendTemplate_SlopeNeedsFullHistory(t *testing.T) {
	v, c := TrendTemplate(ramp(TrendFullHistory-1, 100, 1), TrendFull)
	if !v.Ready {
		t.Fatal("expected ready at 218 bars")
	}
	if c[6] {
		t.Error("condition 7 must be false before 219 bars")
	}
	if v.OK {
		t.Error("full template must not pass without condition 7")
	}

	_, c = TrendTemplate(ramp(TrendFullHistory, 100, 1), TrendFull)
	if !c[6] {
		t.Error("condition 7 should hold at 219 bars of a rising series")
	}
}

func TestTrendTemplate_FallingSeriesFails(t *testing.T) {
	v, c := TrendTemplate(ramp(250, 500, -1), TrendFull)
	if !v.Ready || v.OK {
		t.Fatalf("expected ready and false, got %+v", v)
	}
	if c[1] || c[6] {
		t.Errorf("SMA ordering and slope must fail on a downtrend: %v", c)
	}
}

func TestParseTrendVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    TrendVariant
		wantErr bool
	}{
		{"", TrendFull, false},
		{"full", TrendFull, false},
		{"simplified", TrendSimplified, false},
		{"loose", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTrendVariant(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}
