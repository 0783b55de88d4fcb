package submissions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/mailer"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/google/uuid"
)

// DefaultHoneypotField is the metadata key widgets fill with the trap input.
const DefaultHoneypotField = "honeypot"

// FormLookup finds a form that can receive submissions.
type FormLookup interface {
	GetSubmittable(ctx context.Context, formID string) (*domain.Form, error)
}

// Store persists submissions.
type Store interface {
	Create(ctx context.Context, sub *domain.Submission) error
	UpdateMailLog(ctx context.Context, id uuid.UUID, log domain.MailLog) error
	ListByForm(ctx context.Context, formRef uuid.UUID, limit, offset int) ([]domain.Submission, error)
}

// Dispatcher sends the notification for a submission.
type Dispatcher interface {
	SendContactEmail(ctx context.Context, in mailer.ContactEmail) (domain.MailLog, error)
}

// Payload is what the widget posts.
type Payload struct {
	FormID    string        `json:"form_id"`
	WebsiteID string        `json:"website_id"`
	AppID     string        `json:"app_id,omitempty"`
	Data      domain.Fields `json:"data"`
	Metadata  domain.Fields `json:"metadata"`
}

type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	// OutcomeSpam is reported to the visitor exactly like OutcomeAccepted.
	OutcomeSpam
)

// Outcome is the result of Process.
type Outcome struct {
	Kind       OutcomeKind
	Submission *domain.Submission
}

type Config struct {
	HoneypotField string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Pipeline runs honeypot filtering, persistence and mail dispatch.
type Pipeline struct {
	forms    FormLookup
	store    Store
	mail     Dispatcher
	honeypot string
	logger   *slog.Logger
	now      func() time.Time
}

func NewPipeline(forms FormLookup, store Store, mail Dispatcher, cfg Config) *Pipeline {
	if cfg.HoneypotField == "" {
		cfg.HoneypotField = DefaultHoneypotField
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		forms:    forms,
		store:    store,
		mail:     mail,
		honeypot: cfg.HoneypotField,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Process handles one widget submission. A mail failure never fails the
// submission; it is recorded in the mail log.
func (p *Pipeline) Process(ctx context.Context, in Payload) (*Outcome, error) {
	in.FormID = strings.TrimSpace(in.FormID)
	if in.FormID == "" {
		return nil, domain.BadRequest("form_id is required")
	}
	if len(in.Data) == 0 {
		return nil, domain.BadRequest("data is required")
	}
	if in.Metadata == nil {
		in.Metadata = domain.Fields{}
	}

	// The form's website binding is not compared with in.WebsiteID here;
	// only GetPublicConfig enforces it.
	form, err := p.forms.GetSubmittable(ctx, in.FormID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("form not found")
		}
		return nil, domain.Internal("failed to load form", err)
	}

	sub := &domain.Submission{
		FormRef:   form.ID,
		FormID:    form.FormID,
		WebsiteID: in.WebsiteID,
		AppID:     in.AppID,
		Data:      in.Data,
		Metadata:  in.Metadata,
	}
	log := p.logger.With("form_id", form.FormID)

	if trap, ok := in.Metadata[p.honeypot]; ok && !trap.IsZero() {
		sub.IsSpam = true
		sub.Status = domain.SubmissionArchived
		sub.MailLog = &domain.MailLog{
			Success:   false,
			Method:    domain.MailMethodSkipped,
			Error:     domain.MailErrorSpam,
			Timestamp: p.now().UTC(),
		}
		if err := p.store.Create(ctx, sub); err != nil {
			return nil, domain.Internal("failed to store submission", err)
		}
		metrics.SubmissionSpam()
		log.Info("submission_spam", "submission_id", sub.ID)
		return &Outcome{Kind: OutcomeSpam, Submission: sub}, nil
	}

	sub.Status = domain.SubmissionUnread
	if err := p.store.Create(ctx, sub); err != nil {
		return nil, domain.Internal("failed to store submission", err)
	}
	metrics.SubmissionAccepted()

	mailLog, err := p.mail.SendContactEmail(ctx, mailer.ContactEmail{
		FormID:   form.FormID,
		FormName: form.Name,
		Fields:   form.Fields,
		Settings: form.EmailSettings,
		Layout:   form.Layout,
		Data:     in.Data,
		Metadata: in.Metadata,
	})
	if err != nil {
		if mailLog.Timestamp.IsZero() {
			mailLog = domain.MailLog{Error: err.Error(), Timestamp: p.now().UTC()}
		}
		mailLog.Success = false
		if mailLog.ErrorKind == "" {
			mailLog.ErrorKind = mailer.ClassifyError(err)
		}
		log.Warn("submission_mail_failed", "submission_id", sub.ID, "error_kind", mailLog.ErrorKind)
	}

	// The request context may already be done after a slow dispatch; the
	// mail log write uses its own short deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.UpdateMailLog(writeCtx, sub.ID, mailLog); err != nil {
		log.Error("submission_mail_log_failed", "submission_id", sub.ID, "error", err)
	}
	sub.MailLog = &mailLog

	log.Info("submission_accepted", "submission_id", sub.ID, "mail_success", mailLog.Success, "mail_method", mailLog.Method)
	return &Outcome{Kind: OutcomeAccepted, Submission: sub}, nil
}

// List returns a page of a form's submissions.
func (p *Pipeline) List(ctx context.Context, form *domain.Form, limit, offset int) ([]domain.Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	subs, err := p.store.ListByForm(ctx, form.ID, limit, offset)
	if err != nil {
		return nil, domain.Internal("failed to list submissions", err)
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	return subs, nil
}
