package domain

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionUnread   SubmissionStatus = "unread"
	SubmissionRead     SubmissionStatus = "read"
	SubmissionArchived SubmissionStatus = "archived"
)

// Mail log methods and error classes.
const (
	MailMethodSkipped = "skipped"

	MailErrorSpam      = "spam"
	MailErrorTimeout   = "timeout"
	MailErrorCanceled  = "canceled"
	MailErrorTransport = "transport"
)

// MailLog records the outcome of the notification dispatch for one submission.
type MailLog struct {
	Success    bool      `json:"success"`
	Method     string    `json:"method,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Submission is one visitor payload for a form.
type Submission struct {
	ID        uuid.UUID        `json:"id"`
	FormRef   uuid.UUID        `json:"form_ref"`
	FormID    string           `json:"form_id"`
	WebsiteID string           `json:"website_id"`
	AppID     string           `json:"app_id,omitempty"`
	Data      Fields           `json:"data"`
	Metadata  Fields           `json:"metadata"`
	Status    SubmissionStatus `json:"status"`
	IsSpam    bool             `json:"is_spam"`
	MailLog   *MailLog         `json:"mail_log,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
