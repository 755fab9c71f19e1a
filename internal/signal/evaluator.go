package signal

import (
	"swingtrader/internal/indicator"
	"swingtrader/internal/model"
)

// DefaultWindowDepth keeps enough history for condition 7 of the trend
// template plus headroom for the VCP lookback.
const DefaultWindowDepth = 260

// Params configures an Evaluator.
type Params struct {
	Trend            TrendVariant
	VCP              VCPVariant
	VCPParams        VCPParams
	RSLength         int
	VolumeMultiplier float64
	WindowDepth      int
	// Session decides VWAP resets. nil never resets.
	Session indicator.SessionBoundary
}

// DefaultParams returns the standard evaluator configuration.
func DefaultParams() Params {
	return Params{
		Trend:            TrendFull,
		VCP:              VCPSwing,
		VCPParams:        DefaultVCPParams(),
		RSLength:         DefaultRSLength,
		VolumeMultiplier: DefaultVolumeMultiplier,
		WindowDepth:      DefaultWindowDepth,
	}
}

// Evaluator owns one instrument's indicator state and turns each new bar
// into a Snapshot. It is not safe for concurrent use.
type Evaluator struct {
	symbol string
	params Params

	window *indicator.Window
	rs     *Mansfield
	vwap   *indicator.SessionVWAP
}

// NewEvaluator creates the indicator state for symbol. A window depth
// smaller than the evaluators need is raised to TrendFullHistory.
func NewEvaluator(symbol string, p Params) *Evaluator {
	if p.WindowDepth < TrendFullHistory {
		p.WindowDepth = TrendFullHistory
	}
	if p.WindowDepth < p.VCPParams.Lookback {
		p.WindowDepth = p.VCPParams.Lookback
	}
	if p.VolumeMultiplier <= 0 {
		p.VolumeMultiplier = DefaultVolumeMultiplier
	}
	return &Evaluator{
		symbol: symbol,
		params: p,
		window: indicator.NewWindow(p.WindowDepth),
		rs:     NewMansfield(p.RSLength),
		vwap:   indicator.NewSessionVWAP(p.Session),
	}
}

// Symbol returns the instrument this evaluator tracks.
func (e *Evaluator) Symbol() string { return e.symbol }

// Bars returns how many bars have been accepted so far.
func (e *Evaluator) Bars() int { return e.window.Count() }

// Update appends b and evaluates every signal on the new last bar.
// A malformed or out-of-order bar is rejected without touching any state.
func (e *Evaluator) Update(b model.Bar) (Snapshot, error) {
	if err := e.window.Push(b); err != nil {
		return Snapshot{}, err
	}

	closes := e.window.Closes()
	highs := e.window.Highs()
	lows := e.window.Lows()
	volumes := e.window.Volumes()

	s := Snapshot{Symbol: e.symbol, Time: b.Time, Close: b.Close}
	s.Trend, _ = TrendTemplate(closes, e.params.Trend)
	s.RS = e.rs.Update(b.Close, b.Aux, b.HasAux)
	s.VCP = VCP(e.params.VCP, highs, lows, closes, volumes, e.params.VCPParams)
	s.Breakout = Breakout(closes, volumes, e.params.VolumeMultiplier)
	s.VWAP = e.vwap.Update(b)
	s.VWAPReady = e.vwap.Ready()
	return s, nil
}
