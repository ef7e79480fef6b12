// Package notification delivers trend-flip and operational alerts to
// external channels (Telegram, webhooks).
package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"laguerre-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. Symbol/TF/Filter/Trend
// are set for trend-flip alerts and empty for operational ones.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`

	Symbol string      `json:"symbol,omitempty"`
	TF     int         `json:"tf,omitempty"`
	Filter string      `json:"filter,omitempty"`
	Trend  model.Trend `json:"trend,omitempty"`
	TS     time.Time   `json:"ts,omitempty"`
}

// TrendFlip builds the alert for a steady filter changing direction.
func TrendFlip(symbol string, tf int, filter string, from, to model.Trend, value float64, ts time.Time) Alert {
	level := AlertInfo
	if to == model.TrendDown {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s %s trend flip: %s → %s", symbol, filter, from, to),
		Message: fmt.Sprintf("%s %ds bar closed at filter value %.5f; %s turned %s",
			symbol, tf, value, filter, to),
		Symbol: symbol,
		TF:     tf,
		Filter: filter,
		Trend:  to,
		TS:     ts,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Fanout delivers each alert to every backend, logging failures rather
// than short-circuiting — one dead webhook must not silence Telegram.
type Fanout struct {
	backends []Notifier
}

// NewFanout creates a fanout over the given backends.
func NewFanout(backends ...Notifier) *Fanout {
	return &Fanout{backends: backends}
}

func (f *Fanout) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, b := range f.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend %T delivery failed: %v", b, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FromConfig builds the notifier stack from config values. Empty values
// disable a backend; with everything empty, alerts go to the log.
func FromConfig(webhookURL, telegramBotToken, telegramChatID string) Notifier {
	var backends []Notifier
	if webhookURL != "" {
		backends = append(backends, NewWebhookNotifier(webhookURL))
	}
	if telegramBotToken != "" && telegramChatID != "" {
		backends = append(backends, NewTelegramNotifier(telegramBotToken, telegramChatID))
	}
	if len(backends) == 0 {
		return NewLogNotifier()
	}
	if len(backends) == 1 {
		return backends[0]
	}
	return NewFanout(backends...)
}
