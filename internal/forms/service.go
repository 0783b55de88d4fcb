package forms

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/audit"
	"github.com/Jeffreasy/KoruFormsService/internal/broker"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
	"github.com/google/uuid"
)

// Repository is the form persistence used by the service. A nil scope means
// unrestricted access.
type Repository interface {
	Create(ctx context.Context, f *domain.Form) error
	Get(ctx context.Context, formID string) (*domain.Form, error)
	GetScoped(ctx context.Context, formID string, scope []string) (*domain.Form, error)
	List(ctx context.Context, scope []string) ([]domain.Form, error)
	Update(ctx context.Context, formID string, scope []string, patch domain.FormPatch) (int64, error)
	Delete(ctx context.Context, formID string, scope []string) (int64, error)
	Activate(ctx context.Context, formID, websiteID string) (*domain.Form, error)
	ReconcilableWebsites(ctx context.Context) ([]string, error)
	SetActiveForWebsite(ctx context.Context, websiteID string, active bool) (int64, error)
}

// WebsiteDirectory is the part of the identity broker the engine consults.
type WebsiteDirectory interface {
	AppID() string
	GetWebsite(ctx context.Context, websiteID, bearer string) (*broker.Website, error)
	VerifyToken(ctx context.Context, bearer string) (*broker.VerifiedToken, error)
}

// Service is the form authorization and lifecycle engine.
type Service struct {
	repo      Repository
	directory WebsiteDirectory
	audit     audit.Logger
	logger    *slog.Logger
	recheck   bool
}

type Option func(*Service)

// WithCreateRecheck refreshes the caller's website set from the broker before
// a form is created, when the session carries an upstream token.
func WithCreateRecheck(enabled bool) Option {
	return func(s *Service) { s.recheck = enabled }
}

func NewService(repo Repository, directory WebsiteDirectory, auditLog audit.Logger, logger *slog.Logger, opts ...Option) *Service {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, directory: directory, audit: auditLog, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// scope returns the website filter for a session; admins are unrestricted.
func scope(sess domain.Session) []string {
	if sess.Role == domain.RoleAdmin {
		return nil
	}
	if sess.Websites == nil {
		return []string{}
	}
	return sess.Websites
}

var formIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// CreateInput is the dashboard payload for a new form.
type CreateInput struct {
	FormID        string               `json:"form_id"`
	Name          string               `json:"name"`
	WebsiteID     string               `json:"website_id,omitempty"`
	Fields        []domain.Field       `json:"fields"`
	Layout        domain.Layout        `json:"layout"`
	EmailSettings domain.EmailSettings `json:"email_settings"`
}

func (s *Service) Create(ctx context.Context, in CreateInput, sess domain.Session) (*domain.Form, error) {
	in.FormID = strings.TrimSpace(in.FormID)
	if !formIDPattern.MatchString(in.FormID) {
		return nil, domain.BadRequest("form_id must be 1-128 characters of letters, digits, '-' or '_'")
	}
	if err := validateFields(in.Fields); err != nil {
		return nil, err
	}

	if _, err := s.repo.Get(ctx, in.FormID); err == nil {
		return nil, domain.Conflict("a form with this form_id already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, domain.Internal("failed to check form_id", err)
	}

	websites := sess.Websites
	if s.recheck && s.directory != nil && sess.ExternalToken != "" {
		v, err := s.directory.VerifyToken(ctx, sess.ExternalToken)
		if err != nil {
			return nil, mapUpstream(err)
		}
		websites = v.Websites
	}

	target, err := resolveWebsite(in.WebsiteID, websites)
	if err != nil {
		return nil, err
	}

	f := &domain.Form{
		FormID:        in.FormID,
		Name:          in.Name,
		WebsiteID:     &target,
		Status:        domain.StatusActive,
		IsActive:      true,
		Fields:        in.Fields,
		Layout:        in.Layout,
		EmailSettings: in.EmailSettings,
	}
	if sess.UserID != uuid.Nil {
		uid := sess.UserID
		f.CreatedBy = &uid
	}

	if err := s.repo.Create(ctx, f); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, domain.Conflict("a form with this form_id already exists")
		}
		return nil, domain.Internal("failed to create form", err)
	}

	s.audit.Log(ctx, audit.Event{ActorID: sess.UserID, Action: audit.EventFormCreated, Target: f.FormID, WebsiteID: target})
	s.logger.Info("form_created", "form_id", f.FormID, "website_id", target)
	return f, nil
}

// resolveWebsite picks the explicit website when it is authorized, else the
// first authorized website.
func resolveWebsite(explicit string, websites []string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		for _, w := range websites {
			if w == explicit {
				return explicit, nil
			}
		}
		return "", domain.Forbidden("you are not authorized for this website")
	}
	if len(websites) == 0 {
		return "", domain.BadRequest("no authorized website available for this account")
	}
	return websites[0], nil
}

func (s *Service) List(ctx context.Context, sess domain.Session) ([]domain.Form, error) {
	forms, err := s.repo.List(ctx, scope(sess))
	if err != nil {
		return nil, domain.Internal("failed to list forms", err)
	}
	if forms == nil {
		forms = []domain.Form{}
	}
	return forms, nil
}

// Get returns a form the caller owns. Missing and foreign forms are
// indistinguishable.
func (s *Service) Get(ctx context.Context, formID string, sess domain.Session) (*domain.Form, error) {
	f, err := s.repo.GetScoped(ctx, formID, scope(sess))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("form not found")
		}
		return nil, domain.Internal("failed to load form", err)
	}
	return f, nil
}

func (s *Service) Update(ctx context.Context, formID string, patch domain.FormPatch, sess domain.Session) (*domain.Form, error) {
	if patch.Empty() {
		return nil, domain.BadRequest("nothing to update")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, domain.BadRequest("status must be draft, active or inactive")
	}
	if patch.Fields != nil {
		if err := validateFields(*patch.Fields); err != nil {
			return nil, err
		}
	}

	if _, err := s.Get(ctx, formID, sess); err != nil {
		return nil, err
	}

	n, err := s.repo.Update(ctx, formID, scope(sess), patch)
	if err != nil {
		return nil, domain.Internal("failed to update form", err)
	}
	if n == 0 {
		return nil, domain.Internal("form update matched no rows", nil)
	}

	f, err := s.Get(ctx, formID, sess)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{ActorID: sess.UserID, Action: audit.EventFormUpdated, Target: formID, WebsiteID: websiteOf(f)})
	return f, nil
}

func (s *Service) Delete(ctx context.Context, formID string, sess domain.Session) error {
	n, err := s.repo.Delete(ctx, formID, scope(sess))
	if err != nil {
		return domain.Internal("failed to delete form", err)
	}
	if n == 0 {
		return domain.NotFound("form not found")
	}
	s.audit.Log(ctx, audit.Event{ActorID: sess.UserID, Action: audit.EventFormDeleted, Target: formID})
	s.logger.Info("form_deleted", "form_id", formID)
	return nil
}

// Activate binds a form to a website the caller is authorized for, after
// confirming with the broker that this app is installed there.
func (s *Service) Activate(ctx context.Context, formID, websiteID string, sess domain.Session) (*domain.Form, error) {
	websiteID = strings.TrimSpace(websiteID)
	if websiteID == "" {
		return nil, domain.BadRequest("websiteId is required")
	}
	if _, err := s.Get(ctx, formID, sess); err != nil {
		return nil, err
	}
	if sess.Role != domain.RoleAdmin && !sess.Owns(websiteID) {
		return nil, domain.Forbidden("website is not in your authorized set")
	}
	if s.directory == nil {
		return nil, domain.BadRequest("identity service is not configured")
	}

	site, err := s.directory.GetWebsite(ctx, websiteID, sess.ExternalToken)
	if err != nil {
		return nil, mapUpstream(err)
	}
	if !site.Installed(s.directory.AppID()) {
		return nil, domain.Forbidden("this app is not installed on the website")
	}

	f, err := s.repo.Activate(ctx, formID, websiteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("form not found")
		}
		return nil, domain.Internal("failed to activate form", err)
	}

	s.audit.Log(ctx, audit.Event{ActorID: sess.UserID, Action: audit.EventFormActivated, Target: formID, WebsiteID: websiteID})
	s.logger.Info("form_activated", "form_id", formID, "website_id", websiteID)
	return f, nil
}

// GetPublicConfig serves the widget. Each gate has its own message so site
// owners can tell why a widget is dark.
func (s *Service) GetPublicConfig(ctx context.Context, formID, websiteID string) (*domain.PublicConfig, error) {
	f, err := s.repo.Get(ctx, formID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("form not found")
		}
		return nil, domain.Internal("failed to load form", err)
	}
	switch {
	case !f.IsActive:
		return nil, domain.Forbidden("site no longer registered")
	case f.Status != domain.StatusActive:
		return nil, domain.Forbidden("form is not activated")
	case !f.BoundTo(websiteID):
		return nil, domain.Forbidden("site not authorized for this form")
	}

	// NOTE: admin_email is part of the public payload; widgets do not need it.
	return &domain.PublicConfig{
		FormID:        f.FormID,
		Name:          f.Name,
		Fields:        f.Fields,
		Layout:        f.Layout,
		EmailSettings: f.EmailSettings,
	}, nil
}

// ValidatePermissions reports whether the form is live for one of the
// caller's websites. It never fails for a missing form; it answers invalid.
func (s *Service) ValidatePermissions(ctx context.Context, formID string, sess domain.Session) (*domain.PermissionCheck, error) {
	f, err := s.repo.Get(ctx, formID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.PermissionCheck{Valid: false, Reason: "form not found"}, nil
		}
		return nil, domain.Internal("failed to load form", err)
	}

	res := &domain.PermissionCheck{WebsiteID: f.WebsiteID}
	switch {
	case !f.IsActive:
		res.Reason = "form is globally disabled"
	case f.Status != domain.StatusActive:
		res.Reason = "form is not active"
	case f.WebsiteID == nil:
		res.Reason = "form is not bound to a website"
	case sess.Role != domain.RoleAdmin && !sess.Owns(*f.WebsiteID):
		res.Reason = "website not in your authorized set"
	default:
		res.Valid = true
	}
	return res, nil
}

// ActiveWebsites lists the websites the reconciler must revalidate.
func (s *Service) ActiveWebsites(ctx context.Context) ([]string, error) {
	return s.repo.ReconcilableWebsites(ctx)
}

// ApplyWebsiteValidity flips the global flag of every form on websiteID whose
// flag disagrees with valid. It returns the number of forms changed.
func (s *Service) ApplyWebsiteValidity(ctx context.Context, websiteID string, valid bool) (int64, error) {
	n, err := s.repo.SetActiveForWebsite(ctx, websiteID, valid)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.audit.Log(ctx, audit.Event{
			Action:    audit.EventReconciled,
			Target:    websiteID,
			WebsiteID: websiteID,
			Metadata:  map[string]string{"is_active": boolString(valid), "forms": itoa(n)},
		})
	}
	return n, nil
}

// mapUpstream converts broker errors for dashboard callers.
func mapUpstream(err error) error {
	switch broker.StatusOf(err) {
	case http.StatusUnauthorized:
		return domain.Unauthorized("identity service rejected the session")
	case http.StatusForbidden:
		return domain.Forbidden("access to this website was denied")
	case 0:
		return &domain.Error{Kind: domain.KindBadRequest, Message: "identity service unavailable", Err: err}
	default:
		return &domain.Error{Kind: domain.KindBadRequest, Message: "identity service rejected the request", Err: err}
	}
}

func websiteOf(f *domain.Form) string {
	if f.WebsiteID == nil {
		return ""
	}
	return *f.WebsiteID
}
