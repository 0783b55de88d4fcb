package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
)

var ErrNoRecipient = errors.New("form has no admin email configured")

// ContactEmail is the input of one notification dispatch.
type ContactEmail struct {
	FormID   string
	FormName string
	Fields   []domain.Field
	Settings domain.EmailSettings
	Layout   domain.Layout
	Data     domain.Fields
	Metadata domain.Fields
}

// DispatcherConfig wires the transports. Secondary may be nil.
type DispatcherConfig struct {
	From           string
	Primary        Transport
	Secondary      Transport
	AttemptTimeout time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Dispatcher sends the admin notification (and optional autoresponder) over
// the primary transport and falls back to the secondary when it fails.
type Dispatcher struct {
	from      string
	primary   Transport
	secondary Transport
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		from:      cfg.From,
		primary:   cfg.Primary,
		secondary: cfg.Secondary,
		timeout:   cfg.AttemptTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// SendContactEmail always returns a populated log. The error is non-nil only
// when no transport delivered the notification.
func (d *Dispatcher) SendContactEmail(ctx context.Context, in ContactEmail) (domain.MailLog, error) {
	admin := strings.TrimSpace(in.Settings.AdminEmail)
	if admin == "" {
		return d.failure(ErrNoRecipient), ErrNoRecipient
	}

	replyTo := FindReplyTo(in.Fields, in.Data)
	title := in.FormName
	if title == "" {
		title = in.FormID
	}
	subject := strings.TrimSpace(in.Settings.SubjectLine)
	if subject == "" {
		subject = "New submission: " + title
	}
	subject = RenderSubject(subject, in.Data)

	text, html, err := renderNotification(title, in.Fields, in.Data, in.Metadata)
	if err != nil {
		return d.failure(err), err
	}
	notification := Message{From: d.from, To: admin, ReplyTo: replyTo, Subject: subject, Text: text, HTML: html}

	var autoreply *Message
	if in.Settings.Autoresponder && replyTo != "" {
		autoreply = &Message{
			From:    d.from,
			To:      replyTo,
			ReplyTo: admin,
			Subject: "Re: " + title,
			Text:    renderAutoresponder(title, in.Layout.SuccessMsg),
		}
	}

	log := d.logger.With("form_id", in.FormID, "to_hash", HashRecipient(admin))

	var errs []error
	for _, t := range []Transport{d.primary, d.secondary} {
		if t == nil {
			continue
		}
		rec, err := d.attempt(ctx, t, notification)
		metrics.MailAttempt(t.Name(), err == nil)
		if err != nil {
			log.Warn("mail_attempt_failed", "method", t.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}

		if autoreply != nil {
			// Autoresponder failures are logged only and never reported in the mail log.
			if _, err := d.attempt(ctx, t, *autoreply); err != nil {
				log.Warn("autoresponder_failed", "method", t.Name(), "error", err)
			}
		}

		log.Info("mail_sent", "method", t.Name(), "fallback", t != d.primary)
		return domain.MailLog{
			Success:    true,
			Method:     t.Name(),
			MessageID:  rec.MessageID,
			StatusCode: rec.StatusCode,
			Timestamp:  d.now().UTC(),
		}, nil
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no mail transport configured"))
	}
	err = errors.Join(errs...)
	log.Error("mail_delivery_failed", "error", err)
	return d.failure(err), err
}

// attempt bounds a single transport call by the per-attempt timeout.
func (d *Dispatcher) attempt(ctx context.Context, t Transport, msg Message) (Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return t.Send(ctx, msg)
}

func (d *Dispatcher) failure(err error) domain.MailLog {
	return domain.MailLog{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: ClassifyError(err),
		Timestamp: d.now().UTC(),
	}
}

// ClassifyError maps a delivery error to a mail log error class.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.MailErrorTimeout
	case errors.Is(err, context.Canceled):
		return domain.MailErrorCanceled
	default:
		return domain.MailErrorTransport
	}
}
