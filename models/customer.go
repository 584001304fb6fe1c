package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a client of an entreprise
type Customer struct {
	ID           uuid.UUID `json:"id" db:"id"`
	EntrepriseID uuid.UUID `json:"entreprise_id" db:"entreprise_id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Phone        string    `json:"phone" db:"phone"`
	Address      string    `json:"address" db:"address"`
	VATNumber    string    `json:"vat_number" db:"vat_number"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Customer model
func (Customer) TableName() string {
	return "customers"
}

// NewCustomer creates a new Customer for the given entreprise
func NewCustomer(entrepriseID uuid.UUID, name string) *Customer {
	return &Customer{
		ID:           uuid.New(),
		EntrepriseID: entrepriseID,
		Name:         name,
		CreatedAt:    time.Now(),
	}
}
