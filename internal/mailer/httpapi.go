package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAPIConfig configures the fallback transport.
type HTTPAPIConfig struct {
	Endpoint        string
	APIKey          string
	Timeout         time.Duration
	SkipEgressCheck bool
}

// HTTPAPITransport posts messages as JSON to a transactional email API.
type HTTPAPITransport struct {
	cfg        HTTPAPIConfig
	httpClient *http.Client
}

func NewHTTPAPITransport(cfg HTTPAPIConfig) (*HTTPAPITransport, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("mail API endpoint is required")
	}
	if !cfg.SkipEgressCheck {
		if err := ValidateAPIEndpoint(cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid mail API endpoint: %w", err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPAPITransport{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (t *HTTPAPITransport) Name() string { return "api" }

type apiRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

type apiResponse struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
}

func (t *HTTPAPITransport) Send(ctx context.Context, msg Message) (Receipt, error) {
	body, err := json.Marshal(apiRequest{
		From:    msg.From,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: stripHeader(msg.Subject),
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode mail API request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to create mail API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("mail API request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Receipt{StatusCode: resp.StatusCode}, fmt.Errorf("mail API error %d: %s", resp.StatusCode, string(raw))
	}

	rec := Receipt{StatusCode: resp.StatusCode}
	var out apiResponse
	if json.NewDecoder(resp.Body).Decode(&out) == nil {
		rec.MessageID = out.MessageID
		if rec.MessageID == "" {
			rec.MessageID = out.ID
		}
	}
	return rec, nil
}
