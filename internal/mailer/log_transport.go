package mailer

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport writes messages to the log instead of sending them.
// It stands in for SMTP in development.
type LogTransport struct {
	Logger *slog.Logger
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger.InfoContext(ctx, "email_logged",
		"message_id", id,
		"to", msg.To,
		"reply_to", msg.ReplyTo,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return Receipt{MessageID: id}, nil
}
