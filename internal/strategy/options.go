package strategy

import (
	"fmt"
	"time"

	"swingtrader/internal/signal"
)

// EntryPriceMode decides what price a filled buy records as the entry.
type EntryPriceMode string

const (
	// EntryAtFill records the broker's fill price.
	EntryAtFill EntryPriceMode = "fill"
	// EntryAtDecision records the close of the bar that produced the intent.
	EntryAtDecision EntryPriceMode = "decision"
)

// Options parameterises the controller and the evaluators behind it.
// One Options value replaces the family of near-identical strategy
// variants: thresholds, exit rules and evaluator variants are all here.
type Options struct {
	StopLossPct           float64 `yaml:"stop_loss_pct"`
	TrailingStopPct       float64 `yaml:"trailing_stop_pct"`
	TrailingActivationPct float64 `yaml:"trailing_activation_pct"`

	RSThreshold      float64 `yaml:"rs_threshold"`
	RSMALength       int     `yaml:"rs_ma_length"`
	VolumeMultiplier float64 `yaml:"volume_multiplier"`
	VCPThreshold     float64 `yaml:"vcp_threshold"`

	// "HH:MM" in the calendar timezone; empty disables the rule.
	SessionOpen  string `yaml:"session_open"`
	SessionClose string `yaml:"session_close"`

	TrendVariant   signal.TrendVariant `yaml:"trend_variant"`
	VCPVariant     signal.VCPVariant   `yaml:"vcp_variant"`
	EntryPriceMode EntryPriceMode      `yaml:"entry_price_mode"`

	WindowDepth int `yaml:"window_depth"`
	// Instruments with fewer bars are skipped by the loader.
	MinBars int `yaml:"min_bars"`

	// Remaining VCP detector settings; Threshold is taken from VCPThreshold.
	VCP signal.VCPParams `yaml:"vcp"`
}

// DefaultOptions returns the standard swing configuration.
func DefaultOptions() Options {
	return Options{
		StopLossPct:           0.05,
		TrailingStopPct:       0.10,
		TrailingActivationPct: 0.05,
		RSThreshold:           8,
		RSMALength:            signal.DefaultRSLength,
		VolumeMultiplier:      signal.DefaultVolumeMultiplier,
		VCPThreshold:          0.10,
		TrendVariant:          signal.TrendFull,
		VCPVariant:            signal.VCPSwing,
		EntryPriceMode:        EntryAtFill,
		WindowDepth:           signal.DefaultWindowDepth,
		MinBars:               signal.DefaultWindowDepth,
		VCP:                   signal.DefaultVCPParams(),
	}
}

// Validate rejects out-of-range values.
func (o *Options) Validate() error {
	if o.StopLossPct <= 0 || o.StopLossPct >= 1 {
		return fmt.Errorf("stop_loss_pct must be in (0,1), got %v", o.StopLossPct)
	}
	if o.TrailingStopPct <= 0 || o.TrailingStopPct >= 1 {
		return fmt.Errorf("trailing_stop_pct must be in (0,1), got %v", o.TrailingStopPct)
	}
	if o.TrailingActivationPct < 0 {
		return fmt.Errorf("trailing_activation_pct must be >= 0, got %v", o.TrailingActivationPct)
	}
	if o.RSMALength < 1 {
		return fmt.Errorf("rs_ma_length must be >= 1, got %d", o.RSMALength)
	}
	if o.VolumeMultiplier <= 0 {
		return fmt.Errorf("volume_multiplier must be > 0, got %v", o.VolumeMultiplier)
	}
	if o.WindowDepth < signal.TrendFullHistory {
		return fmt.Errorf("window_depth must be >= %d, got %d", signal.TrendFullHistory, o.WindowDepth)
	}
	if o.MinBars < 0 {
		return fmt.Errorf("min_bars must be >= 0, got %d", o.MinBars)
	}
	if _, err := signal.ParseTrendVariant(string(o.TrendVariant)); err != nil {
		return err
	}
	if _, err := signal.ParseVCPVariant(string(o.VCPVariant)); err != nil {
		return err
	}
	switch o.EntryPriceMode {
	case "", EntryAtFill, EntryAtDecision:
	default:
		return fmt.Errorf("unknown entry_price_mode %q", o.EntryPriceMode)
	}
	vcp := o.VCP
	vcp.Threshold = o.VCPThreshold
	if err := vcp.Validate(); err != nil {
		return err
	}
	return nil
}

// SignalParams derives the evaluator configuration.
func (o *Options) SignalParams(session func(prev, cur time.Time) bool) signal.Params {
	trend, _ := signal.ParseTrendVariant(string(o.TrendVariant))
	vcpVariant, _ := signal.ParseVCPVariant(string(o.VCPVariant))
	vcp := o.VCP
	vcp.Threshold = o.VCPThreshold
	return signal.Params{
		Trend:            trend,
		VCP:              vcpVariant,
		VCPParams:        vcp,
		RSLength:         o.RSMALength,
		VolumeMultiplier: o.VolumeMultiplier,
		WindowDepth:      o.WindowDepth,
		Session:          session,
	}
}
