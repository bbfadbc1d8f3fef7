// Package notification delivers operator alerts for risk and safety
// events. The risk engine talks to it through a narrow adapter so
// alert transport failures never affect trading decisions.
package notification

import (
	"context"
	"log"

	"tradecore/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// LevelFor maps breaker severities onto alert levels.
func LevelFor(sev model.Severity) AlertLevel {
	switch sev {
	case model.SeverityCritical:
		return AlertCritical
	case model.SeverityWarning:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them. Used in
// development and as the fallback when no webhook is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// MultiNotifier fans an alert out to every backend. Delivery is
// best-effort per backend; the first error is returned after all
// backends have been tried.
type MultiNotifier struct {
	backends []Notifier
}

func NewMultiNotifier(backends ...Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RiskAlerter adapts a Notifier to the risk engine's alert hook.
// Breaker alerts are always sent as critical.
type RiskAlerter struct {
	Backend Notifier
}

func (r *RiskAlerter) Notify(ctx context.Context, title, message string) error {
	return r.Backend.Send(ctx, Alert{Level: AlertCritical, Title: title, Message: message})
}
