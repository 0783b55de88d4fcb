package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of the audit log.
type EventType string

const (
	EventLoginSuccess  EventType = "auth.login.success"
	EventFormCreated   EventType = "form.created"
	EventFormUpdated   EventType = "form.updated"
	EventFormDeleted   EventType = "form.deleted"
	EventFormActivated EventType = "form.activated"
	EventReconciled    EventType = "form.reconciled"
)

// Event is one audit record. ActorID is uuid.Nil for system actions.
type Event struct {
	ActorID   uuid.UUID
	Action    EventType
	Target    string
	WebsiteID string
	Metadata  map[string]string
}

// Logger defines the contract for immutable audit logging.
type Logger interface {
	Log(ctx context.Context, ev Event)
}

// SlogLogger writes audit events through slog with a marker that log
// aggregators can route to a separate index.
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Log(ctx context.Context, ev Event) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("actor_id", ev.ActorID.String()),
		slog.String("action", string(ev.Action)),
		slog.String("target", ev.Target),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	if ev.WebsiteID != "" {
		fields = append(fields, slog.String("website_id", ev.WebsiteID))
	}
	for k, v := range ev.Metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}

// Nop discards events. Used in tests.
type Nop struct{}

func (Nop) Log(context.Context, Event) {}
