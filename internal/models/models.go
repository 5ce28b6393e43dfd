// package models defines the data model for the event management client
package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Role is the closed set of account roles understood by the client.
type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleOrganizer
	RoleAdmin
)

// AllRoles lists every assignable role.
var AllRoles = []Role{RoleUser, RoleOrganizer, RoleAdmin}

var roleNames = map[Role]string{
	RoleUser:      "USER",
	RoleOrganizer: "ORGANIZER",
	RoleAdmin:     "ADMIN",
}

// ParseRole maps a role name in any casing onto a [Role].
//
// Unrecognised names map to [RoleUnknown].
func ParseRole(s string) Role {
	s = strings.ToUpper(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnknown
}

// String returns the upper-case role name, or "UNKNOWN".
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsValid reports whether r is one of the assignable roles.
func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

// In reports whether r is a member of roles. [RoleUnknown] is never a member.
func (r Role) In(roles []Role) bool {
	return r.IsValid() && slices.Contains(roles, r)
}

// MarshalText implements [encoding.TextMarshaler].
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]; unknown names decode to [RoleUnknown] without error.
func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}

// Identity is the currently authenticated user.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UnmarshalJSON accepts either "id" or "_id" for the identifier.
func (i *Identity) UnmarshalJSON(data []byte) error {
	type alias Identity
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if i.ID == "" {
		i.ID = aux.MongoID
	}
	return nil
}

// HasRole reports whether the identity's role is one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	return i.Role.In(roles)
}

// String renders the identity for logs and CLI output.
func (i Identity) String() string {
	return fmt.Sprintf("%s <%s> (%s)", i.Name, i.Email, i.Role)
}
