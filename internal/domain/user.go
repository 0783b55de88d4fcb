package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

// User is the local identity record. Websites is the cached authorized set,
// refreshed on every delegated login.
type User struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	PasswordHash      string    `json:"-"`
	Role              string    `json:"role"`
	ExternalID        string    `json:"external_id,omitempty"`
	SealedExternalTok string    `json:"-"`
	Websites          []string  `json:"websites"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Session is the authorization data carried by a signed session token.
type Session struct {
	UserID        uuid.UUID
	Email         string
	Role          string
	Websites      []string
	ExternalToken string
}

// Owns reports whether websiteID is in the session's authorized set.
func (s Session) Owns(websiteID string) bool {
	for _, w := range s.Websites {
		if w == websiteID {
			return true
		}
	}
	return false
}
