package signal

import "testing"

type knot struct {
	at int
	v  float64
}

// zigzag linearly interpolates between knots; the last knot fixes the length.
func zigzag(knots []knot) []float64 {
	out := make([]float64, knots[len(knots)-1].at+1)
	for k := 1; k < len(knots); k++ {
		a, b := knots[k-1], knots[k]
		for i := a.at; i <= b.at; i++ {
			f := float64(i-a.at) / float64(b.at-a.at)
			out[i] = a.v + f*(b.v-a.v)
		}
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// contractingBase swings with ranges narrowing from 30 points down to 2.5.
var contractingBase = []knot{
	{0, 80}, {10, 120}, {20, 90}, {30, 115}, {40, 95}, {50, 110},
	{60, 100}, {70, 106}, {80, 102}, {90, 104.5}, {99, 103.5},
}

func TestContractionCount_Monotone(t *testing.T) {
	seqs := [][]float64{
		{0.3},
		{0.3, 0.2},
		{0.2, 0.3},
		{0.3, 0.3, 0.1},
		{0.5, 0.1, 0.4, 0.2},
	}
	for _, h := range seqs {
		before := ContractionCount(h)
		after := ContractionCount(append(append([]float64{}, h...), h[len(h)-1]/2))
		if after < before || after > before+1 {
			t.Errorf("%v: count went %d -> %d", h, before, after)
		}
		if after != before+1 {
			t.Errorf("%v: a smaller trailing height must add one contraction", h)
		}
	}
}

func TestContractionHeights_HandCalculated(t *testing.T) {
	highs := []float64{10, 12, 11, 9, 10, 8}
	lows := []float64{9, 10, 8, 7, 9, 7}
	// triples (0,2,4): bars [0,4) high 12 low 7 -> 5/12
	//          (2,4,5): bars [2,5) high 11 low 7 -> 4/11
	got := ContractionHeights(highs, lows, []int{0, 2, 4, 5})
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	assertNear(t, "h0", got[0], 5.0/12, 1e-12)
	assertNear(t, "h1", got[1], 4.0/11, 1e-12)

	if ContractionHeights(highs, lows, []int{0, 2}) != nil {
		t.Error("fewer than three swing points must yield no heights")
	}
}

func TestVCPSwing_Contracting(t *testing.T) {
	closes := zigzag(contractingBase)
	volumes := constant(len(closes), 1000)
	volumes[len(volumes)-1] = 500

	v, d := VCPSwingPattern(closes, closes, closes, volumes, DefaultVCPParams())
	if !v.Ready {
		t.Fatal("expected ready")
	}
	want := []int{10, 20, 30, 40, 50, 60, 70, 80, 90}
	if len(d.SwingPoints) != len(want) {
		t.Fatalf("swing points: got %v, want %v", d.SwingPoints, want)
	}
	for i := range want {
		if d.SwingPoints[i] != want[i] {
			t.Fatalf("swing points: got %v, want %v", d.SwingPoints, want)
		}
	}
	if d.ContractionCount != 6 {
		t.Errorf("contractions: got %d, want 6 (heights %v)", d.ContractionCount, d.Heights)
	}
	assertNear(t, "last height", d.LastHeight, 4.0/106, 1e-9)
	if !d.VolumeDry {
		t.Error("expected dry volume")
	}
	if !v.OK {
		t.Error("expected contraction pattern")
	}
}

func TestVCPSwing_VolumeNotDry(t *testing.T) {
	closes := zigzag(contractingBase)
	volumes := constant(len(closes), 1000)
	volumes[len(volumes)-1] = 2000

	v, d := VCPSwingPattern(closes, closes, closes, volumes, DefaultVCPParams())
	if !v.Ready || v.OK {
		t.Fatalf("expected ready and false, got %+v", v)
	}
	if d.VolumeDry {
		t.Error("volume above average is not dry")
	}
}

func TestVCPSwing_Expanding(t *testing.T) {
	closes := zigzag([]knot{
		{0, 100}, {10, 102}, {20, 99}, {30, 105}, {40, 95}, {50, 112},
		{60, 90}, {70, 118}, {80, 85}, {90, 125}, {99, 120},
	})
	volumes := constant(len(closes), 1000)
	volumes[len(volumes)-1] = 500

	v, d := VCPSwingPattern(closes, closes, closes, volumes, DefaultVCPParams())
	if !v.Ready || v.OK {
		t.Fatalf("expected ready and false, got %+v", v)
	}
	if d.ContractionCount != 0 {
		t.Errorf("contractions: got %d, want 0", d.ContractionCount)
	}
}

func TestVCPSwing_NotReady(t *testing.T) {
	closes := zigzag(contractingBase)[:99]
	v, _ := VCPSwingPattern(closes, closes, closes, constant(99, 1000), DefaultVCPParams())
	if v.Ready {
		t.Error("99 bars must not be ready")
	}
}

func TestVCPSwing_TooFewSwings(t *testing.T) {
	closes := ramp(100, 100, 1)
	v, _ := VCPSwingPattern(closes, closes, closes, constant(100, 1000), DefaultVCPParams())
	if !v.Ready || v.OK {
		t.Errorf("monotone series: expected ready and false, got %+v", v)
	}
}

// bandSeries alternates around 100 with a shrinking amplitude and falling
// volume, then ends on lastClose.
func bandSeries(lastClose float64) (highs, lows, closes, volumes []float64) {
	const n = 60
	for i := 0; i < n-1; i++ {
		amp := 10 - 9.5*float64(i)/58
		c := 100 + amp
		if i%2 == 1 {
			c = 100 - amp
		}
		closes = append(closes, c)
		highs = append(highs, c+0.5)
		lows = append(lows, c-0.5)
		volumes = append(volumes, 2000-10*float64(i))
	}
	closes = append(closes, lastClose)
	highs = append(highs, lastClose+0.5)
	lows = append(lows, lastClose-0.5)
	volumes = append(volumes, 3000)
	return
}

func TestVCPBand_Contracting(t *testing.T) {
	h, l, c, v := bandSeries(120)
	if got := VCPBandPattern(h, l, c, v, DefaultVCPParams()); !got.Pass() {
		t.Errorf("expected band contraction with breakout, got %+v", got)
	}
}

func TestVCPBand_NoBreakout(t *testing.T) {
	h, l, c, v := bandSeries(100)
	got := VCPBandPattern(h, l, c, v, DefaultVCPParams())
	if !got.Ready || got.OK {
		t.Errorf("expected ready and false, got %+v", got)
	}
}

func TestVCPBand_NotReady(t *testing.T) {
	p := DefaultVCPParams()
	h, l, c, v := bandSeries(120)
	k := p.BandMinBars() - 1
	tail := func(s []float64) []float64 { return s[len(s)-k:] }
	if got := VCPBandPattern(tail(h), tail(l), tail(c), tail(v), p); got.Ready {
		t.Error("expected not ready")
	}
}

func TestVCPParams_Validate(t *testing.T) {
	if err := DefaultVCPParams().Validate(); err != nil {
		t.Fatalf("defaults: %v", err)
	}
	p := DefaultVCPParams()
	p.Threshold = 0
	if err := p.Validate(); err == nil {
		t.Error("zero threshold should be rejected")
	}
	p = DefaultVCPParams()
	p.MinSwingPoints = 2
	if err := p.Validate(); err == nil {
		t.Error("fewer than three swing points should be rejected")
	}
}
