package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"fermentation_monitor/internal/logger"
)

// sendTimeout bounds a single delivery attempt. Sends are never retried;
// a failed send is logged and dropped.
const sendTimeout = 5 * time.Second

// Channel delivers one text message. The core treats all channels alike.
type Channel interface {
	Name() string
	Send(ctx context.Context, message string) error
}

// WebhookChannel POSTs the message as a small JSON body to a fixed URL.
type WebhookChannel struct {
	URL    string
	client *http.Client
}

func NewWebhookChannel(rawURL string) *WebhookChannel {
	return &WebhookChannel{
		URL:    rawURL,
		client: &http.Client{Timeout: sendTimeout},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// TelegramChannel delivers through the Telegram bot sendMessage API.
type TelegramChannel struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		apiBase: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: sendTimeout},
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	form := url.Values{
		"chat_id": {c.chatID},
		"text":    {message},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram responded %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans one message out to every configured channel. Channels fail
// independently; one channel's failure never blocks another's attempt.
type Dispatcher struct {
	channels []Channel
	log      *logger.Logger
}

func NewDispatcher(log *logger.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

// Channels reports how many channels are configured.
func (d *Dispatcher) Channels() int { return len(d.channels) }

// Dispatch attempts delivery on every channel and reports whether at least
// one succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, message string) bool {
	sent := false
	for _, ch := range d.channels {
		if err := ch.Send(ctx, message); err != nil {
			if d.log != nil {
				d.log.Errorw("notification_send_failed", "channel", ch.Name(), "err", err)
			}
			continue
		}
		sent = true
	}
	return sent
}
