package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountType distinguishes solo freelancers from teams
type AccountType string

const (
	AccountTypeIndividual AccountType = "individual"
	AccountTypeGroup      AccountType = "group"
)

// Valid reports whether t is a known account type
func (t AccountType) Valid() bool {
	return t == AccountTypeIndividual || t == AccountTypeGroup
}

// Role represents the platform role of a profile
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleMaintainer Role = "maintainer"
	RoleAmbassador Role = "ambassador"
	RoleCampusHead Role = "campus_head"
	RoleRegional   Role = "regional"
	RoleGroup      Role = "group"
	RoleIndividual Role = "individual"
)

// AllRoles is the closed set of roles. Anything outside it is unknown.
var AllRoles = []Role{
	RoleAdmin,
	RoleMaintainer,
	RoleAmbassador,
	RoleCampusHead,
	RoleRegional,
	RoleGroup,
	RoleIndividual,
}

// Valid reports whether r belongs to AllRoles
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// CanVerify reports whether the role may verify other accounts
func (r Role) CanVerify() bool {
	switch r {
	case RoleAdmin, RoleMaintainer, RoleAmbassador, RoleCampusHead, RoleRegional:
		return true
	}
	return false
}

// CanOrganize reports whether the role may create events
func (r Role) CanOrganize() bool {
	return r.CanVerify()
}

// Profile is the single identity/account record
type Profile struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Email        string      `json:"email" db:"email"`
	AccountType  AccountType `json:"account_type" db:"account_type"`
	Role         Role        `json:"role" db:"role"`
	DisplayName  *string     `json:"display_name,omitempty" db:"display_name"`
	AvatarURL    *string     `json:"avatar_url,omitempty" db:"avatar_url"`
	Bio          *string     `json:"bio,omitempty" db:"bio"`
	Phone        *string     `json:"phone,omitempty" db:"phone"`
	Skills       []string    `json:"skills" db:"skills"`
	Level        int         `json:"level" db:"level"`
	IsVerified   bool        `json:"is_verified" db:"is_verified"`
	VerifiedBy   *uuid.UUID  `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt   *time.Time  `json:"verified_at,omitempty" db:"verified_at"`
	Subject      *string     `json:"-" db:"oauth_subject"`
	PasswordHash *string     `json:"-" db:"password_hash"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Identity is the verified caller identity supplied by an authenticator.
// ProfileID is set for locally issued tokens; external providers supply
// Subject and Email.
type Identity struct {
	ProfileID *uuid.UUID
	Subject   string
	Email     string
	ImageURL  string
	Role      Role
}

// Empty reports whether the identity carries nothing to resolve
func (i *Identity) Empty() bool {
	return i == nil || (i.ProfileID == nil && i.Subject == "" && i.Email == "")
}
