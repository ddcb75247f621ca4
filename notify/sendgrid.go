package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrMissingAPIKey is returned by NewSendGridSender without a key.
var ErrMissingAPIKey = errors.New("notify: missing SendGrid API key")

// SendGridConfig configures SendGridSender.
type SendGridConfig struct {
	APIKey      string
	BaseURL     string
	FromName    string
	Client      *http.Client
	MaxAttempts int
}

// SendGridSender delivers messages through the SendGrid v3 mail/send API.
type SendGridSender struct {
	cfg SendGridConfig
}

// NewSendGridSender validates cfg and fills defaults.
func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &SendGridSender{cfg: cfg}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send delivers m. 429 and 5xx responses are retried with exponential
// backoff; other non-2xx responses fail immediately.
func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	req := sgRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: m.To}}}},
		From:             sgAddress{Email: m.From, Name: s.cfg.FromName},
		Subject:          m.Subject,
	}
	// SendGrid requires text/plain before text/html.
	if m.Text != "" {
		req.Content = append(req.Content, sgContent{Type: "text/plain", Value: m.Text})
	}
	if m.HTML != "" {
		req.Content = append(req.Content, sgContent{Type: "text/html", Value: m.HTML})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sendgrid: encode: %w", err)
	}

	op := func() (struct{}, error) {
		return struct{}{}, s.post(ctx, payload)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

func (s *SendGridSender) post(ctx context.Context, payload []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("sendgrid: request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
