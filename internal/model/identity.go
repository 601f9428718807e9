package model

import "time"

// UserID is the opaque study identifier issued at registration
type UserID string

// Role is a claim resolved once when an identity is established
type Role string

const (
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// Identity is the current user as seen by one client session
type Identity struct {
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Email     string    `json:"email,omitempty"`
	Phase     Phase     `json:"phase"`
	Role      Role      `json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin returns true if the identity carries the admin role
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

// DisplayName returns the username, falling back to a generic label
func (i *Identity) DisplayName() string {
	if i == nil || i.Username == "" {
		return "Player"
	}
	return i.Username
}

// SessionKey scopes an identity to a single client session
type SessionKey string
