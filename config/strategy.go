package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"swingtrader/internal/execution"
	"swingtrader/internal/portfolio"
	"swingtrader/internal/strategy"
)

// StrategyFile is the YAML document selected by STRATEGY_FILE:
//
//	strategy:
//	  stop_loss_pct: 0.05
//	  trend_variant: full
//	broker:
//	  position_pct: 0.1
//	risk:
//	  max_open_positions: 10
//
// Missing keys keep their defaults.
type StrategyFile struct {
	Strategy strategy.Options     `yaml:"strategy"`
	Broker   execution.Config     `yaml:"broker"`
	Risk     portfolio.RiskLimits `yaml:"risk"`
}

// DefaultStrategyFile returns the defaults every file is layered over.
func DefaultStrategyFile() StrategyFile {
	return StrategyFile{
		Strategy: strategy.DefaultOptions(),
		Broker:   execution.DefaultConfig(),
		Risk:     portfolio.DefaultRiskLimits(),
	}
}

// LoadStrategy reads path over the defaults. An empty path returns the
// defaults unchanged.
func LoadStrategy(path string) (StrategyFile, error) {
	if path == "" {
		return DefaultStrategyFile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return StrategyFile{}, fmt.Errorf("read strategy file: %w", err)
	}
	sf, err := ParseStrategy(raw)
	if err != nil {
		return StrategyFile{}, fmt.Errorf("%s: %w", path, err)
	}
	return sf, nil
}

// ParseStrategy decodes a strategy document over the defaults and
// validates the result. Unknown keys are errors.
func ParseStrategy(raw []byte) (StrategyFile, error) {
	sf := DefaultStrategyFile()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return StrategyFile{}, fmt.Errorf("parse strategy: %w", err)
	}
	if err := sf.Validate(); err != nil {
		return StrategyFile{}, err
	}
	return sf, nil
}

// Validate checks every section.
func (sf *StrategyFile) Validate() error {
	if err := sf.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if sf.Broker.PositionPct < 0 || sf.Broker.PositionPct > 1 {
		return fmt.Errorf("broker: position_pct must be in [0,1], got %v", sf.Broker.PositionPct)
	}
	if sf.Broker.PositionPct == 0 && sf.Broker.Size < 1 {
		return fmt.Errorf("broker: size must be >= 1 when position_pct is 0, got %d", sf.Broker.Size)
	}
	if sf.Risk.MaxOpenPositions < 0 || sf.Risk.MaxPositionValue < 0 {
		return errors.New("risk: limits must be >= 0")
	}
	if sf.Risk.MaxDrawdownPct < 0 || sf.Risk.MaxDrawdownPct > 100 {
		return fmt.Errorf("risk: max_drawdown_pct must be in [0,100], got %v", sf.Risk.MaxDrawdownPct)
	}
	return nil
}
