package audit

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSlogLogger_WritesAuditMarker(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	actor := uuid.New()
	l.Log(context.Background(), Event{
		ActorID:   actor,
		Action:    EventFormActivated,
		Target:    "contact-1",
		WebsiteID: "w1",
		Metadata:  map[string]string{"source": "dashboard"},
	})

	out := buf.String()
	assert.Contains(t, out, `"log_type":"AUDIT_TRAIL"`)
	assert.Contains(t, out, `"action":"form.activated"`)
	assert.Contains(t, out, `"actor_id":"`+actor.String()+`"`)
	assert.Contains(t, out, `"website_id":"w1"`)
	assert.Contains(t, out, `"meta_source":"dashboard"`)
}
