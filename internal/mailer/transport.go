// Package mailer delivers contact-form notifications over a primary transport
// with an optional fallback transport.
package mailer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
)

// Message is a fully rendered email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Receipt is what a transport reports on success.
type Receipt struct {
	MessageID  string
	StatusCode int
}

// Transport delivers one message. Implementations must honour ctx.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// HashRecipient returns a SHA-256 of the address for logs.
func HashRecipient(email string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(hash[:])
}

// sanitizeAddress parses addr and rejects header injection attempts.
func sanitizeAddress(addr string) (string, error) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(parsed.Address, "\r\n") || strings.ContainsAny(parsed.Name, "\r\n") {
		return "", fmt.Errorf("CRLF injection detected in email address")
	}
	return parsed.String(), nil
}

// stripHeader removes line breaks from a header value.
func stripHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
