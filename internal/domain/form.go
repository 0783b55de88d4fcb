package domain

import (
	"time"

	"github.com/google/uuid"
)

// FormStatus is the owner-controlled activation state of a form.
type FormStatus string

const (
	// StatusDraft is never produced by Create; it survives for stored records
	// and is still accepted by the submission pipeline.
	StatusDraft    FormStatus = "draft"
	StatusActive   FormStatus = "active"
	StatusInactive FormStatus = "inactive"
)

func (s FormStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusInactive:
		return true
	}
	return false
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldNumber   FieldType = "number"
)

type Field struct {
	ID       string    `json:"id"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label"`
	Required bool      `json:"required"`
	Options  string    `json:"options,omitempty"`
	Width    string    `json:"width,omitempty"`
}

type Layout struct {
	DisplayType string `json:"display_type"`
	Position    string `json:"position,omitempty"`
	BubbleIcon  string `json:"bubble_icon,omitempty"`
	AccentColor string `json:"accent_color,omitempty"`
	SubmitText  string `json:"submit_text,omitempty"`
	SuccessMsg  string `json:"success_msg,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type EmailSettings struct {
	AdminEmail    string `json:"admin_email"`
	SubjectLine   string `json:"subject_line"`
	Autoresponder bool   `json:"autoresponder"`
}

// Form is a tenant-bound contact form definition.
//
// Status is changed by the owner. IsActive is the global master switch and is
// only flipped by activation and website reconciliation.
type Form struct {
	ID            uuid.UUID     `json:"id"`
	FormID        string        `json:"form_id"`
	Name          string        `json:"name"`
	WebsiteID     *string       `json:"website_id"`
	Status        FormStatus    `json:"status"`
	IsActive      bool          `json:"is_active"`
	Fields        []Field       `json:"fields"`
	Layout        Layout        `json:"layout"`
	EmailSettings EmailSettings `json:"email_settings"`
	CreatedBy     *uuid.UUID    `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// BoundTo reports whether the form is bound to websiteID.
func (f *Form) BoundTo(websiteID string) bool {
	return f.WebsiteID != nil && *f.WebsiteID == websiteID
}

// IsServable reports whether the public widget may render the form for websiteID.
func (f *Form) IsServable(websiteID string) bool {
	return f.IsActive && f.Status == StatusActive && f.BoundTo(websiteID)
}

// FormPatch carries the owner-editable fields of a form. Nil means unchanged.
type FormPatch struct {
	Name          *string        `json:"name,omitempty"`
	Status        *FormStatus    `json:"status,omitempty"`
	Fields        *[]Field       `json:"fields,omitempty"`
	Layout        *Layout        `json:"layout,omitempty"`
	EmailSettings *EmailSettings `json:"email_settings,omitempty"`
}

func (p FormPatch) Empty() bool {
	return p.Name == nil && p.Status == nil && p.Fields == nil && p.Layout == nil && p.EmailSettings == nil
}

// PublicConfig is what the embeddable widget receives. EmailSettings still
// carries the admin address; widgets only need the layout and fields.
type PublicConfig struct {
	FormID        string        `json:"form_id"`
	Name          string        `json:"name"`
	Fields        []Field       `json:"fields"`
	Layout        Layout        `json:"layout"`
	EmailSettings EmailSettings `json:"email_settings"`
}

// PermissionCheck is the boolean-wrapped result of a permission validation.
type PermissionCheck struct {
	Valid     bool    `json:"valid"`
	Reason    string  `json:"reason,omitempty"`
	WebsiteID *string `json:"website_id"`
}
