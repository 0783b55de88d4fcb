package middleware

import (
	"context"
	"fmt"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const sessionKey contextKey = "session"

// WithSession stores the authenticated session in ctx.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// GetSession extracts the session placed by RequireSession.
func GetSession(ctx context.Context) (domain.Session, error) {
	val := ctx.Value(sessionKey)
	if val == nil {
		return domain.Session{}, fmt.Errorf("session not found in context")
	}
	s, ok := val.(domain.Session)
	if !ok {
		return domain.Session{}, fmt.Errorf("session has wrong type: %T", val)
	}
	return s, nil
}

// MustGetSession extracts the session and panics if not found.
// Use only behind RequireSession.
func MustGetSession(ctx context.Context) domain.Session {
	s, err := GetSession(ctx)
	if err != nil {
		panic(fmt.Sprintf("CRITICAL: %v", err))
	}
	return s
}
