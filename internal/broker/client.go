package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Error is returned when the broker answers with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity broker returned %d: %s", e.StatusCode, e.Message)
}

// StatusOf returns the upstream status code carried by err, or 0 when err is
// a connection-level failure.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return 0
}

// Config holds the app credentials registered with the Koru Suite broker.
type Config struct {
	BaseURL   string
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// Client talks to the Koru Suite identity broker.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AppID is the identifier this service is installed under.
func (c *Client) AppID() string { return c.cfg.AppID }

// LoginResult is the broker's answer to a successful login.
type LoginResult struct {
	User        RemoteUser `json:"user"`
	AccessToken string     `json:"access_token"`
	Websites    IDList     `json:"websites"`
}

type RemoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Login authenticates an end user against the broker with app credentials.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{"username": username, "password": password}
	var out LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Website is the subset of the broker's website document this service reads.
type Website struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Apps IDList `json:"apps"`
}

// Installed reports whether appID is among the website's installed apps.
func (w *Website) Installed(appID string) bool {
	for _, a := range w.Apps {
		if a == appID {
			return true
		}
	}
	return false
}

// GetWebsite fetches a website. A non-empty bearer token is sent as the user's
// credential; otherwise the app credentials are used.
func (c *Client) GetWebsite(ctx context.Context, websiteID, bearer string) (*Website, error) {
	var out Website
	if err := c.do(ctx, http.MethodGet, "/websites/"+url.PathEscape(websiteID), bearer, nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = websiteID
	}
	return &out, nil
}

// VerifiedToken is the broker's view of a user token.
type VerifiedToken struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Websites IDList `json:"websites"`
}

// VerifyToken asks the broker for the current identity behind a user token.
func (c *Client) VerifyToken(ctx context.Context, bearer string) (*VerifiedToken, error) {
	var out VerifiedToken
	if err := c.do(ctx, http.MethodGet, "/auth/verify-token", bearer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode broker request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create broker request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-App-ID", c.cfg.AppID)
	req.Header.Set("X-App-Secret", c.cfg.AppSecret)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("broker request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("broker response parse error: %w", err)
	}
	return nil
}

// errorMessage extracts {"message": ...} or {"error": ...} from an error body.
func errorMessage(raw []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return fallback
}

// IDList decodes a JSON array whose elements are either bare string IDs or
// objects carrying an "id" (or "_id") field.
type IDList []string

func (l *IDList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(IDList, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			ID    string `json:"id"`
			AltID string `json:"_id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return fmt.Errorf("unexpected id entry %s", string(item))
		}
		switch {
		case obj.ID != "":
			out = append(out, obj.ID)
		case obj.AltID != "":
			out = append(out, obj.AltID)
		}
	}
	*l = out
	return nil
}
