// Package auth verifies the backend's access tokens and binds them to browser sessions.
package auth

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/roomiegr/roomie/internal/errs"
	"github.com/roomiegr/roomie/internal/model"
)

// DefaultLeeway absorbs clock skew between the auth service and this process.
const DefaultLeeway = 30 * time.Second

// Claims is the claim set of the backend's access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email          string       `json:"email,omitempty"`
	Role           string       `json:"role,omitempty"`
	AppMetadata    AppMetadata  `json:"app_metadata"`
	UserMetadata   UserMetadata `json:"user_metadata"`
	ImpersonatorID string       `json:"impersonator_id,omitempty"`
}

// AppMetadata holds claims only the backend can set.
type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// UserMetadata holds profile claims.
type UserMetadata struct {
	EmailVerified bool `json:"email_verified,omitempty"`
}

// Verifier checks HS256 access tokens signed with the backend's JWT secret.
type Verifier struct {
	key      []byte
	leeway   time.Duration
	audience string
}

// NewVerifier creates a verifier. An empty audience skips the aud check.
func NewVerifier(key []byte, leeway time.Duration, audience string) *Verifier {
	return &Verifier{key: key, leeway: leeway, audience: audience}
}

// Verify parses and validates a token and returns the caller it identifies.
func (v *Verifier) Verify(token string) (model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return v.key, nil }, opts...)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	uid, err := uuid.FromString(c.Subject)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}

	id := model.Identity{
		UserID:         uid,
		Email:          c.Email,
		EmailConfirmed: c.UserMetadata.EmailVerified,
		Role:           c.AppMetadata.Role,
		ExpiresAt:      c.ExpiresAt.Time,
	}
	if id.Role == "" {
		id.Role = model.RoleUser
	}
	if c.ImpersonatorID != "" {
		imp, err := uuid.FromString(c.ImpersonatorID)
		if err != nil {
			return model.Identity{}, fmt.Errorf("%w: bad impersonator", errs.ErrUnauthorized)
		}
		id.ImpersonatorID = &imp
	}
	return id, nil
}

// Sign issues an HS256 token for c. The application tier never issues tokens in production;
// this serves local development and tests.
func Sign(key []byte, c Claims) (string, error) {
	if c.Role == "" {
		c.Role = "authenticated"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(key)
}

// NewClaims builds claims for a user valid for ttl.
func NewClaims(userID uuid.UUID, email, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:       email,
		AppMetadata: AppMetadata{Role: role},
	}
}
