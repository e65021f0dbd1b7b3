package models

import "strings"

// RegisterRequest creates a member account with password login.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// LoginRequest carries password credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// NewAccount is a member about to be created with a hashed password.
type NewAccount struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

// Credentials is the login view of a member. PasswordHash is empty for
// members created without a password.
type Credentials struct {
	MemberID     string
	Email        string
	PasswordHash string
	FirstName    *string
	LastName     *string
}

// Profile is the account view of a member.
type Profile struct {
	ID              string  `json:"id"`
	Email           *string `json:"email"`
	FirstName       *string `json:"first_name"`
	LastName        *string `json:"last_name"`
	ProfileImageURL *string `json:"profile_image_url"`
	Tier            Tier    `json:"membership_tier"`
}

// DisplayName joins the first and last names, falling back to the local part
// of the email address.
func (p *Profile) DisplayName() string {
	var parts []string
	for _, s := range []*string{p.FirstName, p.LastName} {
		if s != nil && strings.TrimSpace(*s) != "" {
			parts = append(parts, strings.TrimSpace(*s))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if p.Email != nil {
		local, _, _ := strings.Cut(*p.Email, "@")
		return local
	}
	return ""
}

// NormalizeEmail trims and lowercases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
