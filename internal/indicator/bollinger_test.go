package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
)

func TestBollinger_HandCalculated(t *testing.T) {
	// mean 5, σ 2 (see TestStdDev_Population)
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	b, ok := Bollinger(closes, 8, 2)
	if !ok {
		t.Fatal("expected ok")
	}
	assertClose(t, "mid", b.Mid, 5, 1e-12)
	assertClose(t, "top", b.Top, 9, 1e-12)
	assertClose(t, "bottom", b.Bottom, 1, 1e-12)
	assertClose(t, "width", b.Width, 8, 1e-12)
	if !b.PercentBOK {
		t.Fatal("expected percent-B defined")
	}
	// (9-1)/8 = 1
	assertClose(t, "%B", b.PercentB, 1, 1e-12)
}

func TestBollinger_ZeroWidth(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10}
	b, ok := Bollinger(closes, 5, 2)
	if !ok {
		t.Fatal("expected ok")
	}
	if b.PercentBOK {
		t.Error("zero width must leave percent-B undefined")
	}
	if math.IsNaN(b.PercentB) || math.IsInf(b.PercentB, 0) {
		t.Errorf("%%B must not be NaN/Inf, got %v", b.PercentB)
	}
}

func TestBollinger_InsufficientData(t *testing.T) {
	if _, ok := Bollinger([]float64{1, 2, 3}, 20, 2); ok {
		t.Error("expected not ok")
	}
}

func TestBollinger_MatchesTALib(t *testing.T) {
	closes := sampleSeries(90)
	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	for end := 20; end <= len(closes); end++ {
		b, _ := Bollinger(closes[:end], 20, 2)
		assertClose(t, "mid vs talib", b.Mid, middle[end-1], 1e-6)
		assertClose(t, "top vs talib", b.Top, upper[end-1], 1e-6)
		assertClose(t, "bottom vs talib", b.Bottom, lower[end-1], 1e-6)
	}
}

func TestBollingerWidths(t *testing.T) {
	closes := sampleSeries(40)
	widths := BollingerWidths(closes, 20, 2)
	if len(widths) != 21 {
		t.Fatalf("len: got %d, want 21", len(widths))
	}
	last, _ := Bollinger(closes, 20, 2)
	assertClose(t, "last width", widths[len(widths)-1], last.Width/last.Mid, 1e-12)
}
