package models

import (
	"time"

	"github.com/google/uuid"
)

// SiretLength is the length of a French SIRET number
const SiretLength = 14

// Entreprise is a company, the unit of tenant isolation
type Entreprise struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Siret     string    `json:"siret" db:"siret"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Entreprise model
func (Entreprise) TableName() string {
	return "entreprises"
}

// NewEntreprise creates a new, active Entreprise
func NewEntreprise(name, siret string) *Entreprise {
	return &Entreprise{
		ID:        uuid.New(),
		Name:      name,
		Siret:     siret,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
}

// IsValidSiret reports whether s is exactly 14 ASCII digits
func IsValidSiret(s string) bool {
	if len(s) != SiretLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
