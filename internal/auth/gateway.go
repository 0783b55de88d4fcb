package auth

import (
	"context"
	"log/slog"

	"github.com/Jeffreasy/KoruFormsService/internal/audit"
	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

// LoginResult is returned to the dashboard after a successful login.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	User        *domain.User `json:"user"`
	Websites    []string     `json:"websites"`
}

// Gateway turns credentials into a signed session using the strategy chosen
// at startup.
type Gateway struct {
	strategy Strategy
	tokens   TokenProvider
	audit    audit.Logger
	logger   *slog.Logger
}

func NewGateway(strategy Strategy, tokens TokenProvider, auditLog audit.Logger, logger *slog.Logger) *Gateway {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{strategy: strategy, tokens: tokens, audit: auditLog, logger: logger}
}

// Mode reports which strategy is active.
func (g *Gateway) Mode() string { return g.strategy.Name() }

func (g *Gateway) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	id, err := g.strategy.Authenticate(ctx, creds)
	if err != nil {
		g.logger.Warn("login_failed", "mode", g.strategy.Name(), "kind", domain.KindOf(err).String())
		return nil, err
	}

	websites := id.Websites
	if websites == nil {
		websites = []string{}
	}

	token, err := g.tokens.GenerateSessionToken(domain.Session{
		UserID:        id.User.ID,
		Email:         id.User.Email,
		Role:          id.User.Role,
		Websites:      websites,
		ExternalToken: id.ExternalToken,
	})
	if err != nil {
		return nil, domain.Internal("failed to issue session", err)
	}

	g.audit.Log(ctx, audit.Event{
		ActorID:  id.User.ID,
		Action:   audit.EventLoginSuccess,
		Target:   id.User.Email,
		Metadata: map[string]string{"mode": g.strategy.Name()},
	})
	g.logger.Info("login_success", "mode", g.strategy.Name(), "user_id", id.User.ID, "websites", len(websites))

	return &LoginResult{AccessToken: token, User: id.User, Websites: websites}, nil
}
