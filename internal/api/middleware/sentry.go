package middleware

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SetSentryUser adds user context to the request's Sentry scope.
func SetSentryUser(ctx context.Context, userID string, email string, ip string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		return
	}
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: userID, Email: email, IPAddress: ip})
	})
}
