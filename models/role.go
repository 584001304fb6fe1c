package models

import (
	"time"

	"github.com/google/uuid"
)

// RoleCode is the code of a global, immutable role
type RoleCode string

const (
	RoleAdminCabinet  RoleCode = "ADMIN_CABINET"
	RoleGerantPME     RoleCode = "GERANT_PME"
	RoleComptablePME  RoleCode = "COMPTABLE_PME"
	RoleCollaborateur RoleCode = "COLLABORATEUR"
)

// DefaultRoleCode is assigned to users created on first authentication
const DefaultRoleCode = RoleGerantPME

// AllRoleCodes lists every seeded role
var AllRoleCodes = []RoleCode{
	RoleAdminCabinet,
	RoleGerantPME,
	RoleComptablePME,
	RoleCollaborateur,
}

// IsValid returns true if the code is one of the seeded roles
func (c RoleCode) IsValid() bool {
	for _, code := range AllRoleCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Role is a seeded, read-only role record. Rows are created by the schema
// and rejected on UPDATE or DELETE by a trigger.
type Role struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Code        RoleCode  `json:"code" db:"code"`
	Label       string    `json:"label" db:"label"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}
