package auth

import (
	"fmt"
	"slices"
	"strings"
)

type Role string

const (
	RoleSuperAdmin    Role = "super_admin"
	RoleUserManager   Role = "user_manager"
	RoleEventsManager Role = "events_manager"
	RoleNewsManager   Role = "news_manager"
)

// Older records use short or alternative role names.
var roleAliases = map[string]Role{
	"super_admin":     RoleSuperAdmin,
	"superadmin":      RoleSuperAdmin,
	"admin":           RoleSuperAdmin,
	"user_manager":    RoleUserManager,
	"user_management": RoleUserManager,
	"events_manager":  RoleEventsManager,
	"events":          RoleEventsManager,
	"news_manager":    RoleNewsManager,
	"news":            RoleNewsManager,
}

func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
}

// NormalizeRoles maps aliases to canonical roles and drops duplicates,
// keeping first-seen order. Unknown roles are an error.
func NormalizeRoles(in []string) ([]Role, error) {
	out := make([]Role, 0, len(in))
	seen := make(map[Role]struct{}, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

// requiredRoles is NormalizeRoles for writes: an account always keeps at
// least one role.
func requiredRoles(in []string) ([]Role, error) {
	roles, err := NormalizeRoles(in)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", ErrInvalidInput)
	}
	return roles, nil
}

// lenientRoles is NormalizeRoles for data already on disk: unknown names
// are skipped instead of failing the read.
func lenientRoles(in []string) []Role {
	out := make([]Role, 0, len(in))
	seen := make(map[Role]struct{}, len(in))
	for _, s := range in {
		r, err := ParseRole(s)
		if err != nil {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// HasRole reports whether roles grant want. super_admin grants everything.
func HasRole(roles []Role, want Role) bool {
	for _, r := range roles {
		if r == want || r == RoleSuperAdmin {
			return true
		}
	}
	return false
}

// grantable lists the roles a holder may hand out besides its own.
var grantable = map[Role][]Role{
	RoleUserManager: {RoleEventsManager, RoleNewsManager},
}

// CanGrant reports whether an actor holding actor may hand out every role in
// requested. super_admin may grant anything. Other actors may pass on roles
// they hold or that grantable lists for them, but never super_admin.
func CanGrant(actor, requested []Role) error {
	if slices.Contains(actor, RoleSuperAdmin) {
		return nil
	}
	for _, r := range requested {
		if r == RoleSuperAdmin || !canGrantOne(actor, r) {
			return fmt.Errorf("%w: cannot grant role %s", ErrForbidden, r)
		}
	}
	return nil
}

func canGrantOne(actor []Role, r Role) bool {
	for _, a := range actor {
		if a == r || slices.Contains(grantable[a], r) {
			return true
		}
	}
	return false
}

func roleStrings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
