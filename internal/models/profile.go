package models

import (
	"encoding/json"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

// RegisterProfile is the sign-up form.
type RegisterProfile struct {
	Name        string
	Email       string
	Password    string
	Role        Role
	CompanyName string
	Bio         string
}

// Validate applies the sign-up rules. Organizers must provide a company name and bio;
// admins cannot self-register.
func (p RegisterProfile) Validate() error {
	role := p.Role
	if role == RoleUnknown {
		role = RoleUser
	}

	var orgRules []validation.Rule
	if role == RoleOrganizer {
		orgRules = append(orgRules, validation.Required)
	}

	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.Role, validation.In(RoleUnknown, RoleUser, RoleOrganizer).Error("must be USER or ORGANIZER")),
		validation.Field(&p.CompanyName, orgRules...),
		validation.Field(&p.Bio, orgRules...),
	)
}

// MarshalJSON encodes the form the way the API expects it: lower-case role, organizer fields only when set.
func (p RegisterProfile) MarshalJSON() ([]byte, error) {
	role := p.Role
	if role == RoleUnknown {
		role = RoleUser
	}

	return json.Marshal(struct {
		Name        string `json:"name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
		Role        string `json:"role"`
		CompanyName string `json:"companyName,omitempty"`
		Bio         string `json:"bio,omitempty"`
	}{
		Name:        p.Name,
		Email:       p.Email,
		Password:    p.Password,
		Role:        strings.ToLower(role.String()),
		CompanyName: p.CompanyName,
		Bio:         p.Bio,
	})
}
