package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier delivers alerts through the Telegram Bot API
// (sendMessage, MarkdownV2).
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and
// target chat/group/channel ID.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := fmt.Sprintf("%s *%s*\n\n%s",
		alertIcon(alert), escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))

	body, _ := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "MarkdownV2",
	})

	url := "https://api.telegram.org/bot" + t.botToken + "/sendMessage"
	status, err := postJSON(ctx, t.client, url, body)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", status)
	}

	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

// alertIcon picks the message prefix: direction arrows for trend-flip
// alerts, severity icons for everything else.
func alertIcon(alert Alert) string {
	if alert.Filter != "" {
		switch alert.Trend.String() {
		case "UP":
			return "📈"
		case "DOWN":
			return "📉"
		}
	}
	switch alert.Level {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	default:
		return "ℹ️"
	}
}

// escapeMarkdown backslash-escapes Telegram MarkdownV2 specials.
func escapeMarkdown(s string) string {
	const specials = `_*[]()~` + "`" + `>#+-=|{}.!`
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(specials, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
