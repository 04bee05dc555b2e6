package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Profile is the public profile of a user.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url"`
	Bio         string     `json:"bio"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender"`
	Occupation  string     `json:"occupation"`
	Phone       string     `json:"phone"`
	Languages   []string   `json:"languages"`
	Smoker      *bool      `json:"smoker"`
	HasPets     *bool      `json:"has_pets"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProfilePatch is a partial profile update. A nil field means "not provided".
type ProfilePatch struct {
	DisplayName *string    `json:"display_name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Bio         *string    `json:"bio,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	Occupation  *string    `json:"occupation,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
	Languages   *[]string  `json:"languages,omitempty"`
	Smoker      *bool      `json:"smoker,omitempty"`
	HasPets     *bool      `json:"has_pets,omitempty"`
}

// Apply copies every provided field onto p.
func (pp ProfilePatch) Apply(p *Profile) {
	if pp.DisplayName != nil {
		p.DisplayName = *pp.DisplayName
	}
	if pp.AvatarURL != nil {
		p.AvatarURL = *pp.AvatarURL
	}
	if pp.Bio != nil {
		p.Bio = *pp.Bio
	}
	if pp.DateOfBirth != nil {
		p.DateOfBirth = pp.DateOfBirth
	}
	if pp.Gender != nil {
		p.Gender = *pp.Gender
	}
	if pp.Occupation != nil {
		p.Occupation = *pp.Occupation
	}
	if pp.Phone != nil {
		p.Phone = *pp.Phone
	}
	if pp.Languages != nil {
		p.Languages = append([]string(nil), (*pp.Languages)...)
	}
	if pp.Smoker != nil {
		p.Smoker = pp.Smoker
	}
	if pp.HasPets != nil {
		p.HasPets = pp.HasPets
	}
}
