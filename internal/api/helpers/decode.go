package helpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v and rejects unknown fields.
// On failure the returned error carries a sanitized copy of the body, safe
// to log.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return &DecodeError{Err: fmt.Errorf("read body: %w", err)}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Err: fmt.Errorf("invalid JSON: %w", err), Body: SanitizeBody(raw)}
	}
	return nil
}

// DecodeError is returned by DecodeJSON.
type DecodeError struct {
	Err  error
	Body map[string]any
}

func (e *DecodeError) Error() string { return e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

var sensitiveKeys = []string{"password", "username", "secret", "token", "authorization", "api_key"}

// SanitizeBody parses raw as a JSON object and drops credential-like keys at
// any depth. Non-object bodies yield nil.
func SanitizeBody(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	scrub(m)
	return m
}

func scrub(m map[string]any) {
	for k, v := range m {
		if isSensitive(k) {
			delete(m, k)
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			scrub(t)
		case []any:
			for _, item := range t {
				if nested, ok := item.(map[string]any); ok {
					scrub(nested)
				}
			}
		}
	}
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
