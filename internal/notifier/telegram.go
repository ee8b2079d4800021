package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/minterciso/mercadobtc-utils/internal/utils"
)

// DefaultAPIBase is the production Telegram bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

type TelegramNotifier struct {
	Token   string
	ChatID  string
	Retries int
	Delay   time.Duration
	APIBase string
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	if retries <= 0 {
		retries = 3
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &TelegramNotifier{Token: token, ChatID: chatID, Retries: retries, Delay: delay, APIBase: DefaultAPIBase}
}

func (t *TelegramNotifier) Send(message string) error {
	base := t.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", base, t.Token)
	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		err = t.Send(message)
		if err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | Telegram send failed (attempt %d/%d): %v", attempt, t.Retries, err)
		time.Sleep(t.Delay)
	}
	return err
}

// NoopNotifier discards all messages. Used when no Telegram credentials are configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(string) error          { return nil }
func (NoopNotifier) SendWithRetry(string) error { return nil }
