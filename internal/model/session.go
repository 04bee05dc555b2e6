package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects access/refresh tokens issued by the auth service (refresh optional).
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"` // access token expiry
}

// Application roles carried in the token's app_metadata.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Identity is the authenticated caller extracted from a verified access token.
type Identity struct {
	UserID         uuid.UUID  `json:"user_id"`
	Email          string     `json:"email,omitempty"`
	EmailConfirmed bool       `json:"email_confirmed"`
	Role           string     `json:"role"`
	ImpersonatorID *uuid.UUID `json:"impersonator_id,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// Impersonating reports whether the identity is a delegated admin session.
func (i Identity) Impersonating() bool { return i.ImpersonatorID != nil }

// ImpersonationTarget describes the user an admin acts as.
type ImpersonationTarget struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
}

// ImpersonationGrant is what the issuing function returns.
type ImpersonationGrant struct {
	Tokens    Tokens              `json:"tokens"`
	Target    ImpersonationTarget `json:"target"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// ImpersonationSession is the time-boxed delegation record kept in session storage.
type ImpersonationSession struct {
	AdminID   uuid.UUID           `json:"admin_id"`
	Target    ImpersonationTarget `json:"target"`
	Reason    string              `json:"reason"`
	StartedAt time.Time           `json:"started_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Expired reports whether the delegation is over at the given instant.
func (s ImpersonationSession) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }
