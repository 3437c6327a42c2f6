package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// ParseRole normalizes a role string. Unknown values map to RoleGuest.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleGuest
	}
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (e.g., samAccountName or sub)
	FirstName string
	LastName  string
	Email     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from IdP token
}

// DisplayName joins first and last name, falling back to the email.
func (i Identity) DisplayName() string {
	name := strings.TrimSpace(i.FirstName + " " + i.LastName)
	if name == "" {
		return i.Email
	}
	return name
}

// AdminUser is the principal a valid session resolves to.
type AdminUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// IsGuest returns true if the user carries no application role.
func (u AdminUser) IsGuest() bool { return u.Role == RoleGuest }

// AdminAccount is a locally managed administrator credential.
type AdminAccount struct {
	ID           string    `db:"id"            json:"id"`
	Email        string    `db:"email"         json:"email"`
	Name         string    `db:"name"          json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role"          json:"role"`
	Disabled     bool      `db:"disabled"      json:"disabled"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

// User projects the account into the principal carried by sessions.
func (a AdminAccount) User() AdminUser {
	return AdminUser{ID: a.ID, Email: a.Email, Name: a.Name, Role: a.Role}
}

// Session is the server-side record binding an opaque token to an admin.
// Token is 256 bits of crypto/rand, base64url encoded.
type Session struct {
	Token          string    `db:"token"            json:"token"`
	AdminID        string    `db:"admin_id"         json:"admin_id"`
	Email          string    `db:"email"            json:"email"`
	Name           string    `db:"name"             json:"name"`
	Role           Role      `db:"role"             json:"role"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"       json:"expires_at"`
	LastActivityAt time.Time `db:"last_activity_at" json:"last_activity_at"`
}

// Admin resolves the session to its principal.
func (s Session) Admin() AdminUser {
	return AdminUser{ID: s.AdminID, Email: s.Email, Name: s.Name, Role: s.Role}
}

// IsGuest returns true if the session role is guest.
func (s Session) IsGuest() bool { return s.Role == RoleGuest }
