package user

import (
	"strings"
	"time"

	"github.com/trezcool/darasa/core"
)

// Role is the single role a User holds.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

var AllRoles = []Role{RoleStudent, RoleAdmin}

// ParseRole parses a role case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name"`
	Email     string    `json:"email" gorm:"uniqueIndex"`
	Role      Role      `json:"role"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (User) TableName() string { return "users" }

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

// HasRole reports whether the user holds one of roles.
func (u User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, Blocked: u.Blocked}
}

// Summary is the public view of a User returned by admin operations.
type Summary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Blocked bool   `json:"blocked"`
}

// Claims is what the identity provider asserts about the caller.
type Claims struct {
	Subject string
	Email   string
	Role    Role
}

// NewUser contains information needed to mirror an identity-provider account locally.
type NewUser struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  Role   `json:"role" validate:"required,role"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = Role(strings.ToUpper(core.CleanString(string(nu.Role))))
}

// SetBlocked is the payload of the block toggle.
type SetBlocked struct {
	Blocked *bool `json:"blocked" validate:"required"`
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []Role    `query:"role"`
	Blocked     *bool     `query:"blocked"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.Blocked == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	roles := qf.Roles[:0]
	for _, r := range qf.Roles {
		if parsed, ok := ParseRole(string(r)); ok {
			roles = append(roles, parsed)
		}
	}
	if len(roles) == 0 {
		roles = nil
	}
	qf.Roles = roles
}

// OrderingFields lists the columns users can be ordered by.
var OrderingFields = []string{"name", "email", "role", "created_at"}
