package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	appErrors "github.com/noah-isme/academic-records/pkg/errors"
)

// UserRole represents the available roles. A user's role is fixed at creation.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// Valid reports whether the role is supported.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// User is the person record backing students, teachers and administrators.
type User struct {
	AuditFields
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address      *string    `db:"address" json:"address,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// NewUserParams holds the inputs accepted by NewUser.
type NewUserParams struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         UserRole
	Phone        *string
	DateOfBirth  *time.Time
	Address      *string
}

var emailValidator = validator.New()

// NewUser builds a user after checking the required fields.
func NewUser(p NewUserParams, now time.Time) (*User, error) {
	first := strings.TrimSpace(p.FirstName)
	last := strings.TrimSpace(p.LastName)
	email := strings.ToLower(strings.TrimSpace(p.Email))

	switch {
	case first == "" || last == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "first and last name are required")
	case emailValidator.Var(email, "required,email") != nil:
		return nil, appErrors.Clone(appErrors.ErrValidation, "a valid email is required")
	case strings.TrimSpace(p.PasswordHash) == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, "password hash is required")
	case !p.Role.Valid():
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user := &User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: p.PasswordHash,
		Role:         p.Role,
		Phone:        p.Phone,
		DateOfBirth:  p.DateOfBirth,
		Address:      p.Address,
	}
	user.ID = uuid.NewString()
	user.Stamp(now)
	return user, nil
}
