package auth

import (
	"fmt"
	"strings"
)

// Role is the closed set of authorization levels a user can hold.
// The zero value is not a valid role and satisfies nothing.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAdmin
)

// ParseRole converts the stored or requested name of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("auth: unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Satisfies reports whether a holder of r may access something that
// requires the given role. Admin satisfies every role; user only user.
func (r Role) Satisfies(required Role) bool {
	if !required.Valid() {
		return false
	}
	switch r {
	case RoleAdmin:
		return true
	case RoleUser:
		return required == RoleUser
	default:
		return false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("auth: cannot marshal invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Require is the role gate: it fails with ErrUnauthenticated when rc carries
// no user and with ErrForbidden when the user's role does not satisfy role.
func Require(rc *RequestContext, role Role) error {
	if rc == nil || rc.User == nil {
		return ErrUnauthenticated
	}
	if !rc.User.Role.Satisfies(role) {
		return fmt.Errorf("%w: %s role required", ErrForbidden, role)
	}
	return nil
}
