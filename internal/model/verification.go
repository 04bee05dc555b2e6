package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Verification kinds.
const (
	KindEmail = "email"
	KindPhone = "phone"
	KindGovGR = "govgr"
)

// Verification statuses.
const (
	StatusUnverified = "unverified"
	StatusPending    = "pending"
	StatusVerified   = "verified"
)

// Sides of a two-sided identity document.
const (
	SideFront = "front"
	SideBack  = "back"
)

// Verification is a claim of identity or contact ownership owned by a user.
type Verification struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Kind        string     `json:"kind"`
	Side        string     `json:"side,omitempty"` // govgr only
	Status      string     `json:"status"`
	Value       string     `json:"value,omitempty"` // phone number or email address
	DocumentURL string     `json:"document_url,omitempty"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IdentityStatus is the joint status of the two govgr document sides.
type IdentityStatus struct {
	Front         string `json:"front"`
	Back          string `json:"back"`
	FullyVerified bool   `json:"fully_verified"`
	Pending       bool   `json:"pending"`
}
