package authroles

import (
	"strings"

	domainauth "github.com/target/catalog-admin/internal/domain/auth"
)

// StaticRoleMapper grants roles by group membership. The admin group wins
// over the user group; anything else maps to guest and cannot sign in.
// Matching ignores case and surrounding whitespace.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	if m.member(groups, m.AdminGroup) {
		return domainauth.RoleAdmin
	}
	if m.member(groups, m.UserGroup) {
		return domainauth.RoleUser
	}
	return domainauth.RoleGuest
}

func (StaticRoleMapper) member(groups []string, want string) bool {
	want = strings.TrimSpace(want)
	if want == "" {
		return false
	}
	for _, g := range groups {
		if strings.EqualFold(strings.TrimSpace(g), want) {
			return true
		}
	}
	return false
}
