package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipRole is a tenant-scoped role. It is independent of the global RoleCode.
type MembershipRole string

const (
	MembershipTenantOwner   MembershipRole = "TENANT_OWNER"
	MembershipAdminCabinet  MembershipRole = "ADMIN_CABINET"
	MembershipGerantPME     MembershipRole = "GERANT_PME"
	MembershipComptablePME  MembershipRole = "COMPTABLE_PME"
	MembershipCollaborateur MembershipRole = "COLLABORATEUR"
)

// TeamManagerRoles may invite, remove and re-role members
var TeamManagerRoles = []MembershipRole{MembershipTenantOwner, MembershipAdminCabinet}

// AssignableRoles can be granted through invitation or role change.
// TENANT_OWNER is only ever set at company creation.
var AssignableRoles = []MembershipRole{
	MembershipAdminCabinet,
	MembershipGerantPME,
	MembershipComptablePME,
	MembershipCollaborateur,
}

// IsAssignable returns true if the role may be granted to an invited member
func (r MembershipRole) IsAssignable() bool {
	for _, role := range AssignableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Membership links a user to an entreprise with a tenant-scoped role
type Membership struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	UserID       uuid.UUID      `json:"user_id" db:"user_id"`
	EntrepriseID uuid.UUID      `json:"entreprise_id" db:"entreprise_id"`
	Role         MembershipRole `json:"role" db:"role"`
	IsActive     bool           `json:"is_active" db:"is_active"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Membership model
func (Membership) TableName() string {
	return "memberships"
}

// NewMembership creates a new active Membership
func NewMembership(userID, entrepriseID uuid.UUID, role MembershipRole) *Membership {
	now := time.Now()
	return &Membership{
		ID:           uuid.New(),
		UserID:       userID,
		EntrepriseID: entrepriseID,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsOwner returns true for the tenant owner membership
func (m *Membership) IsOwner() bool {
	return m.Role == MembershipTenantOwner
}

// HasAnyRole returns true if the membership role is in roles
func (m *Membership) HasAnyRole(roles ...MembershipRole) bool {
	for _, r := range roles {
		if m.Role == r {
			return true
		}
	}
	return false
}

// MemberDetail is a membership joined with its user, used for team listings
type MemberDetail struct {
	MembershipID uuid.UUID      `json:"membership_id"`
	UserID       uuid.UUID      `json:"user_id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Role         MembershipRole `json:"role"`
	JoinedAt     time.Time      `json:"joined_at"`
}

// TenantMembership is an entreprise seen through one of the user's memberships
type TenantMembership struct {
	Entreprise   Entreprise     `json:"entreprise"`
	MembershipID uuid.UUID      `json:"membership_id"`
	Role         MembershipRole `json:"role"`
	JoinedAt     time.Time      `json:"joined_at"`
}
