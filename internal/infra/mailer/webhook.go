package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sifan077/PowerForm/internal/app/model"
	"github.com/sifan077/PowerForm/internal/infra/retry"
)

// Webhook posts messages as JSON to an HTTP mail relay.
type Webhook struct {
	client *http.Client
	url    string
	token  string
}

// NewWebhook returns a relay transport. A nil client uses http.DefaultClient;
// per-send deadlines come from the caller's context.
func NewWebhook(client *http.Client, url, token string) *Webhook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Webhook{client: client, url: url, token: token}
}

func (w *Webhook) Send(ctx context.Context, msg model.MailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return retry.Permanent(fmt.Errorf("mailer: encode message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("mailer: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: post relay: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("mailer: relay responded %d", resp.StatusCode)
	default:
		// The relay rejected the message itself; resending will not help.
		return retry.Permanent(fmt.Errorf("mailer: relay rejected message with %d", resp.StatusCode))
	}
}
