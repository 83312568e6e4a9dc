package auth

import (
	"strings"
	"time"
)

// Role is the raw role claim carried by a session.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// ParseRole normalizes a role claim. Unknown or empty claims map to RoleUser.
func ParseRole(raw string) Role {
	switch r := Role(strings.TrimSpace(strings.ToLower(raw))); r {
	case RoleAdmin, RoleSuperAdmin:
		return r
	default:
		return RoleUser
	}
}

// IsAdmin reports whether the role lands on the admin dashboard.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// AAL is an authenticator assurance level.
type AAL string

const (
	AAL1 AAL = "aal1"
	AAL2 AAL = "aal2"
)

// ParseAAL maps anything other than "aal2" to AAL1.
func ParseAAL(raw string) AAL {
	if AAL(strings.TrimSpace(strings.ToLower(raw))) == AAL2 {
		return AAL2
	}
	return AAL1
}

// Session is the identity-provider session as seen by the console. The console never
// creates or mutates sessions; it only reads them.
type Session struct {
	UserID       string
	Role         Role
	Token        string
	RefreshToken string
	AAL          AAL
	ExpiresAt    time.Time
}

// Permission is a single grantable capability inside a module.
type Permission struct {
	ID     int    `json:"id"`
	Action string `json:"action"`
	Label  string `json:"label,omitempty"`
}

// Module is a named capability domain with its permission catalog.
type Module struct {
	Slug        string       `json:"slug"`
	Name        string       `json:"name,omitempty"`
	Permissions []Permission `json:"permissions"`
}

// RoleDefinition is a named bundle of permission ids.
type RoleDefinition struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PermissionIDs []int     `json:"permission_ids"`
	UpdatedAt     time.Time `json:"updated_at"`
}
