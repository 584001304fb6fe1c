package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the local identity of an authenticated subject.
// Username holds the identity provider's sub claim verbatim.
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	RoleID       *uuid.UUID `json:"role_id,omitempty" db:"role_id"`
	EntrepriseID *uuid.UUID `json:"entreprise_id,omitempty" db:"entreprise_id"` // active tenant
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(username, email string, roleID *uuid.UUID) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		RoleID:    roleID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasActiveTenant returns true if the user has selected a tenant
func (u *User) HasActiveTenant() bool {
	return u.EntrepriseID != nil && *u.EntrepriseID != uuid.Nil
}
