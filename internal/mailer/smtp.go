package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/google/uuid"
)

// SMTPConfig configures the primary transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLSMode is "auto" (STARTTLS when offered), "starttls", "ssl" or "none".
	TLSMode string
	Timeout time.Duration
	// SkipEgressCheck disables the private-network check for local relays.
	SkipEgressCheck bool
}

// SMTPTransport sends through an SMTP relay using go-mail.
type SMTPTransport struct {
	cfg    SMTPConfig
	logger *slog.Logger
}

func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) (*SMTPTransport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if !cfg.SkipEgressCheck {
		if err := ValidateEgressHost(cfg.Host); err != nil {
			return nil, fmt.Errorf("invalid SMTP host: %w", err)
		}
		if err := ValidateSMTPPort(cfg.Port); err != nil {
			return nil, fmt.Errorf("invalid SMTP port: %w", err)
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{cfg: cfg, logger: logger}, nil
}

func (t *SMTPTransport) Name() string { return "smtp" }

// Send dials and delivers msg. go-mail is not context aware, so the dial runs
// in a goroutine and Send returns as soon as ctx is done.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (Receipt, error) {
	m, messageID, err := t.build(msg)
	if err != nil {
		return Receipt{}, err
	}

	d := mail.NewDialer(t.cfg.Host, t.cfg.Port, t.cfg.Username, t.cfg.Password)
	d.Timeout = t.cfg.Timeout
	d.TLSConfig = &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}
	switch t.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	}

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return Receipt{}, fmt.Errorf("smtp send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			t.logger.Warn("smtp_send_failed", "host", t.cfg.Host, "to_hash", HashRecipient(msg.To), "error", err)
			return Receipt{}, fmt.Errorf("smtp send: %w", err)
		}
	}
	return Receipt{MessageID: messageID}, nil
}

func (t *SMTPTransport) build(msg Message) (*mail.Message, string, error) {
	from, err := sanitizeAddress(msg.From)
	if err != nil {
		return nil, "", fmt.Errorf("invalid From address: %w", err)
	}
	to, err := sanitizeAddress(msg.To)
	if err != nil {
		return nil, "", fmt.Errorf("invalid To address: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), messageIDDomain(from))

	m := mail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", stripHeader(msg.Subject))
	m.SetHeader("Message-ID", messageID)
	if msg.ReplyTo != "" {
		if rt, err := sanitizeAddress(msg.ReplyTo); err == nil {
			m.SetHeader("Reply-To", rt)
		}
	}

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	case msg.HTML != "":
		m.SetBody("text/html", msg.HTML)
	default:
		m.SetBody("text/plain", msg.Text)
	}
	return m, messageID, nil
}

func messageIDDomain(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return "localhost"
}
