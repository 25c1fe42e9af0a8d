package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

var ErrUnknownRole = errors.New("unknown role")

// Legacy role ids from the user_role table. The mapping to the two
// portal roles lives here and nowhere else; callers resolve a role
// once at session start and carry the result.
const (
	externalRolePatient = 1
	externalRoleNurse   = 2
	externalRoleAdmin   = 3
	externalRoleDoctor  = 4
)

var externalRoles = map[int]Role{
	externalRolePatient: RolePatient,
	externalRoleNurse:   RoleStaff,
	externalRoleAdmin:   RoleStaff,
	externalRoleDoctor:  RoleStaff,
}

// RoleFromExternal maps a legacy numeric role id to a portal role.
func RoleFromExternal(roleID int) (Role, error) {
	role, ok := externalRoles[roleID]
	if !ok {
		return "", fmt.Errorf("%w: role_id=%d", ErrUnknownRole, roleID)
	}
	return role, nil
}

// ParseRole validates a role string, e.g. from a token claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleStaff:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Session identifies the authenticated caller for one request. It is
// passed explicitly into every scheduling and booking operation.
type Session struct {
	UserID uuid.UUID
	Role   Role
}

func (s Session) IsStaff() bool   { return s.Role == RoleStaff }
func (s Session) IsPatient() bool { return s.Role == RolePatient }
