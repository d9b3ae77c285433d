// Package model defines the data structures shared by the store, the services
// and the JSON API.
package model

import "time"

// Profile is the public identity of a user.
//
// The ID is assigned once, on first sign-in, and never changes. Username is
// unique across all profiles and may be renamed; share grants follow renames
// through the database's ON UPDATE CASCADE.
//
// WHY GitHubID *int64?
// Profiles are created by the external identity provider flow. The provider id
// is nullable so that profiles can be seeded (tests, imports) without one.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Pic       string    `json:"pic"`
	GitHubID  *int64    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicProfile is the slice of a Profile that is safe to attach to content
// shown to other users (feed entries, comments, share lists).
type PublicProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Pic      string `json:"pic"`
}

// Public strips private fields.
func (p *Profile) Public() *PublicProfile {
	if p == nil {
		return nil
	}
	return &PublicProfile{ID: p.ID, Username: p.Username, Pic: p.Pic}
}
