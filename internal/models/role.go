package models

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleClient   Role = "Client"
	RoleProvider Role = "Provider"
	RoleAdmin    Role = "Admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClient, RoleProvider, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Principal is the authenticated caller supplied by the identity collaborator.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
