package entity

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role identifier is not part of the closed role set
var ErrUnknownRole = errors.New("unknown role")

// Role identifies a category of required signer
type Role string

const (
	RoleMedical           Role = "Medical"
	RoleAAE               Role = "AA&E"
	RoleMember            Role = "Member"
	RoleArmsOfficer       Role = "ArmsOfficer"
	RoleCommandingOfficer Role = "CommandingOfficer"
)

var knownRoles = map[Role]struct{}{
	RoleMedical:           {},
	RoleAAE:               {},
	RoleMember:            {},
	RoleArmsOfficer:       {},
	RoleCommandingOfficer: {},
}

// Valid reports whether r belongs to the known role set
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw identifier into a Role, rejecting unknown values
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// ParseRoles converts a list of raw identifiers
func ParseRoles(values []string) ([]Role, error) {
	roles := make([]Role, 0, len(values))
	for _, v := range values {
		r, err := ParseRole(v)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// RoleStrings converts roles to plain strings for persistence
func RoleStrings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
