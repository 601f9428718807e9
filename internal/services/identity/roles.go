package identity

import (
	"strings"

	"github.com/mcoot/biogames-go/internal/model"
)

// RoleResolver decides the role of a newly established identity
type RoleResolver interface {
	ResolveRole(userID model.UserID) model.Role
}

// SuffixRoleResolver grants admin to ids ending in Suffix.
// Anyone can pick such an id, so the admin role is a convenience claim and not a security boundary.
type SuffixRoleResolver struct {
	Suffix string
}

// DefaultRoleResolver matches the legacy "admin" id suffix
func DefaultRoleResolver() SuffixRoleResolver {
	return SuffixRoleResolver{Suffix: "admin"}
}

func (r SuffixRoleResolver) ResolveRole(userID model.UserID) model.Role {
	if r.Suffix != "" && strings.HasSuffix(string(userID), r.Suffix) {
		return model.RoleAdmin
	}
	return model.RoleParticipant
}
