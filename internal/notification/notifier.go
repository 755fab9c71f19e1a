// Package notification delivers run alerts (entries, exits, broker
// rejections, halted instruments and the final report) to external
// channels.
package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

func (l AlertLevel) rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	}
	return 0
}

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	RunID   string     `json:"run_id,omitempty"`
	Symbol  string     `json:"symbol,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	ev := n.log.Info()
	switch alert.Level {
	case AlertWarning:
		ev = n.log.Warn()
	case AlertCritical:
		ev = n.log.Error()
	}
	ev.Str("symbol", alert.Symbol).Str("title", alert.Title).Msg(alert.Message)
	return nil
}
