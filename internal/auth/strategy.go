package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/broker"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
	"github.com/Jeffreasy/KoruFormsService/internal/storage"
)

// Credentials is what the dashboard posts to /auth/login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Identity is the outcome of a successful authentication.
type Identity struct {
	User          *domain.User
	Websites      []string
	ExternalToken string
}

// Strategy authenticates credentials against one identity source.
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}

// UserRepository is the local user store.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
}

// BrokerLogin is the part of the identity broker used for delegated logins.
type BrokerLogin interface {
	Login(ctx context.Context, username, password string) (*broker.LoginResult, error)
}

// TokenSealer encrypts upstream tokens before they are stored.
type TokenSealer interface {
	Seal(plaintext string) (string, error)
}

var errInvalidCredentials = domain.Unauthorized("invalid credentials")

// StrategyOptions is everything SelectStrategy may need.
type StrategyOptions struct {
	MockEnabled   bool
	MockWebsiteID string
	MockRole      string

	// Broker is used when BrokerConfigured is true (app id and secret set).
	Broker           BrokerLogin
	BrokerConfigured bool

	Users  UserRepository
	Hasher PasswordHasher
	Sealer TokenSealer
	Logger *slog.Logger
}

// SelectStrategy picks the login strategy once at startup: mock mode wins,
// then local accounts when no broker credentials exist, then delegation.
func SelectStrategy(opts StrategyOptions) Strategy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case opts.MockEnabled:
		role := opts.MockRole
		if role == "" {
			role = domain.RoleEditor
		}
		return &MockStrategy{users: opts.Users, websiteID: opts.MockWebsiteID, role: role}
	case !opts.BrokerConfigured:
		return &LocalStrategy{users: opts.Users, hasher: opts.Hasher}
	default:
		return &DelegatedStrategy{broker: opts.Broker, users: opts.Users, sealer: opts.Sealer, logger: logger}
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MockStrategy accepts any username and grants a single configured website.
// Development only.
type MockStrategy struct {
	users     UserRepository
	websiteID string
	role      string
}

func (m *MockStrategy) Name() string { return "mock" }

func (m *MockStrategy) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	email := normalizeEmail(creds.Username)
	if email == "" {
		return nil, domain.BadRequest("username is required")
	}

	user, err := m.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		user = &domain.User{Email: email, Name: email, Role: m.role}
	case err != nil:
		return nil, domain.Internal("failed to load user", err)
	}

	websites := []string{}
	if m.websiteID != "" {
		websites = []string{m.websiteID}
	}
	user.Websites = websites
	if err := m.users.Upsert(ctx, user); err != nil {
		return nil, domain.Internal("failed to store user", err)
	}
	return &Identity{User: user, Websites: websites}, nil
}

// LocalStrategy checks bcrypt hashes of locally created accounts.
type LocalStrategy struct {
	users  UserRepository
	hasher PasswordHasher
}

func (l *LocalStrategy) Name() string { return "local" }

func (l *LocalStrategy) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	email := normalizeEmail(creds.Username)
	if email == "" || creds.Password == "" {
		return nil, domain.BadRequest("username and password are required")
	}

	user, err := l.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, domain.Internal("failed to load user", err)
	}
	if user.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := l.hasher.Compare(user.PasswordHash, creds.Password); err != nil {
		return nil, errInvalidCredentials
	}
	return &Identity{User: user, Websites: user.Websites}, nil
}

// DelegatedStrategy forwards credentials to the Koru Suite identity broker
// and mirrors the resulting identity locally.
type DelegatedStrategy struct {
	broker BrokerLogin
	users  UserRepository
	sealer TokenSealer
	logger *slog.Logger
}

func (d *DelegatedStrategy) Name() string { return "delegated" }

func (d *DelegatedStrategy) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return nil, domain.BadRequest("username and password are required")
	}

	res, err := d.broker.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return nil, mapBrokerLoginError(err)
	}

	email := normalizeEmail(res.User.Email)
	if email == "" {
		email = normalizeEmail(creds.Username)
	}
	role, err := d.localRole(ctx, email)
	if err != nil {
		return nil, err
	}
	if res.User.Role != "" && res.User.Role != role {
		d.logger.Info("delegated_role_ignored", "upstream_role", res.User.Role, "role", role)
	}
	websites := []string(res.Websites)
	if websites == nil {
		websites = []string{}
	}

	user := &domain.User{
		Email:      email,
		Name:       res.User.Name,
		Role:       role,
		ExternalID: res.User.ID,
		Websites:   websites,
	}
	if d.sealer != nil && res.AccessToken != "" {
		sealed, err := d.sealer.Seal(res.AccessToken)
		if err != nil {
			d.logger.Error("external_token_seal_failed", "error", err)
		} else {
			user.SealedExternalTok = sealed
		}
	}

	if err := d.users.Upsert(ctx, user); err != nil {
		return nil, domain.Internal("failed to store user", err)
	}
	return &Identity{User: user, Websites: websites, ExternalToken: res.AccessToken}, nil
}

// localRole decides the role of a delegated user. Upstream roles are never
// trusted: admin (unrestricted scope) is only kept for accounts an operator
// provisioned locally with that role.
func (d *DelegatedStrategy) localRole(ctx context.Context, email string) (string, error) {
	existing, err := d.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return domain.RoleEditor, nil
	case err != nil:
		return "", domain.Internal("failed to load user", err)
	case existing.Role == domain.RoleAdmin:
		return domain.RoleAdmin, nil
	default:
		return domain.RoleEditor, nil
	}
}

func mapBrokerLoginError(err error) error {
	var be *broker.Error
	if !errors.As(err, &be) {
		return &domain.Error{Kind: domain.KindBadRequest, Message: "identity service unavailable", Err: err}
	}
	switch be.StatusCode {
	case http.StatusUnauthorized:
		msg := be.Message
		if msg == "" {
			msg = "invalid credentials"
		}
		return domain.Unauthorized(msg)
	case http.StatusForbidden:
		return domain.Unauthorized("access denied for this app")
	default:
		return &domain.Error{Kind: domain.KindBadRequest, Message: fmt.Sprintf("identity service error (%d)", be.StatusCode), Err: err}
	}
}
