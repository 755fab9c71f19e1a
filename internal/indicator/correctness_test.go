package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// sampleSeries is a deterministic, non-monotonic price path.
func sampleSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		x := float64(i)
		out[i] = 100 + 0.3*x + 5*math.Sin(x/4) + 2*math.Cos(x/1.7)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// Moving average
// ────────────────────────────────────────────────────────────

func TestMovingAverage_HandCalculated(t *testing.T) {
	// (102+104+103)/3 = 103
	prices := []float64{100, 102, 104, 103}
	got, ok := MovingAverage(prices, 3)
	if !ok {
		t.Fatal("expected ok")
	}
	assertClose(t, "MA(3)", got, 103.0, 1e-9)
}

func TestMovingAverage_InsufficientData(t *testing.T) {
	if v, ok := MovingAverage([]float64{1, 2}, 3); ok || v != 0 {
		t.Errorf("expected (0,false), got (%v,%v)", v, ok)
	}
}

func TestMovingAverage_MatchesTALib(t *testing.T) {
	series := sampleSeries(120)
	for _, period := range []int{5, 20, 50} {
		ref := talib.Sma(series, period)
		for end := period; end <= len(series); end++ {
			got, ok := MovingAverage(series[:end], period)
			if !ok {
				t.Fatalf("period %d end %d: not ok", period, end)
			}
			assertClose(t, "SMA vs talib", got, ref[end-1], 1e-9)
		}
	}
}

func TestSMA_Streaming_MatchesBatch(t *testing.T) {
	series := sampleSeries(300)
	sma := NewSMA(52)
	for i, v := range series {
		sma.Update(v)
		want, ok := MovingAverage(series[:i+1], 52)
		if sma.Ready() != ok {
			t.Fatalf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ok)
		}
		if ok {
			assertClose(t, "streaming SMA", sma.Value(), want, 1e-9)
		}
	}
}

func TestSMA_Peek_DoesNotMutate(t *testing.T) {
	sma := NewSMA(3)
	for _, p := range []float64{100, 102, 104} {
		sma.Update(p)
	}
	before := sma.Value()

	// (102+104+106)/3 = 104
	assertClose(t, "SMA Peek", sma.Peek(106), 104.0, 1e-9)
	assertClose(t, "SMA after Peek", sma.Value(), before, 1e-9)
}

func TestSMA_Reset(t *testing.T) {
	sma := NewSMA(2)
	sma.Update(1)
	sma.Update(3)
	sma.Reset()
	if sma.Ready() || sma.Value() != 0 {
		t.Errorf("expected cleared SMA, got ready=%v value=%v", sma.Ready(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// Standard deviation
// ────────────────────────────────────────────────────────────

func TestStdDev_Population(t *testing.T) {
	// mean 5, squared deviations 9,1,1,1,0,0,4,16 → var 32/8=4 → σ=2
	series := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got, ok := StdDev(series, 8)
	if !ok {
		t.Fatal("expected ok")
	}
	assertClose(t, "σ", got, 2.0, 1e-12)
}

func TestStdDev_MatchesTALib(t *testing.T) {
	series := sampleSeries(80)
	ref := talib.StdDev(series, 20, 1.0)
	for end := 20; end <= len(series); end++ {
		got, _ := StdDev(series[:end], 20)
		assertClose(t, "σ vs talib", got, ref[end-1], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// Linear slope
// ────────────────────────────────────────────────────────────

func TestLinearSlope_ExactLine(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 10 + 0.5*float64(i)
	}
	got, ok := LinearSlope(series, 20)
	if !ok {
		t.Fatal("expected ok")
	}
	assertClose(t, "slope", got, 0.5, 1e-12)
}

func TestLinearSlope_Guards(t *testing.T) {
	if _, ok := LinearSlope([]float64{1, 2, 3}, 1); ok {
		t.Error("window 1 must not be ok")
	}
	if _, ok := LinearSlope([]float64{1, 2, 3}, 4); ok {
		t.Error("short series must not be ok")
	}
	got, ok := LinearSlope([]float64{5, 5, 5, 5}, 4)
	if !ok || got != 0 {
		t.Errorf("flat series: got (%v,%v), want (0,true)", got, ok)
	}
}

func TestLinearSlope_MatchesTALib(t *testing.T) {
	series := sampleSeries(100)
	ref := talib.LinearRegSlope(series, 20)
	for end := 20; end <= len(series); end++ {
		got, _ := LinearSlope(series[:end], 20)
		assertClose(t, "slope vs talib", got, ref[end-1], 1e-6)
	}
}

// ────────────────────────────────────────────────────────────
// Highest / Lowest
// ────────────────────────────────────────────────────────────

func TestHighestLowest_MatchTALib(t *testing.T) {
	series := sampleSeries(250)
	maxRef := talib.Max(series, 200)
	minRef := talib.Min(series, 200)
	for end := 200; end <= len(series); end++ {
		hi, _ := Highest(series[:end], 200)
		lo, _ := Lowest(series[:end], 200)
		assertClose(t, "max", hi, maxRef[end-1], 1e-12)
		assertClose(t, "min", lo, minRef[end-1], 1e-12)
	}
}

func TestRollingMeans(t *testing.T) {
	got := RollingMeans([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "rolling mean", got[i], want[i], 1e-12)
	}
	if RollingMeans([]float64{1}, 3) != nil {
		t.Error("expected nil for short series")
	}
}
