package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLogger persists audit events to the audit_logs table. Inserts that
// fail are written to the fallback logger so the event is not lost.
type PostgresLogger struct {
	pool     *pgxpool.Pool
	fallback *SlogLogger
	logger   *slog.Logger
}

func NewPostgresLogger(pool *pgxpool.Pool, logger *slog.Logger) *PostgresLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLogger{pool: pool, fallback: NewSlogLogger(logger), logger: logger}
}

func (p *PostgresLogger) Log(ctx context.Context, ev Event) {
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		p.logger.Error("audit_metadata_marshal_failed", "error", err)
		metaBytes = []byte("{}")
	}

	var actor *uuid.UUID
	if ev.ActorID != uuid.Nil {
		actor = &ev.ActorID
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, target, website_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		actor, string(ev.Action), ev.Target, ev.WebsiteID, metaBytes,
	)
	if err != nil {
		p.logger.Error("audit_db_insert_failed", "action", ev.Action, "error", err)
		p.fallback.Log(ctx, ev)
	}
}
