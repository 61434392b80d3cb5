package crm

import (
	"encoding/json"
	"strings"
	"time"
)

// Contact is a person known to the practice, normally a member of a household
type Contact struct {
	ID            string          `json:"id"`
	FirstName     string          `json:"firstName"`
	LastName      string          `json:"lastName"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	HouseholdID   *string         `json:"householdId"`
	HouseholdName *string         `json:"householdName"`
	CreatedAt     *time.Time      `json:"createdAt"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// FullName joins first and last name
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ContactInput is the data needed to create a contact
type ContactInput struct {
	FirstName   string `json:"firstName" validate:"max=40"`
	LastName    string `json:"lastName" validate:"required,max=80"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=40"`
	HouseholdID string `json:"householdId" validate:"required"`
}

// Validate checks the input before it is sent to a provider
func (in ContactInput) Validate() error {
	return validateStruct(in)
}

// ContactRelationship roles understood by providers that model relationships
const (
	RelationshipSpouse  = "Spouse"
	RelationshipPartner = "Partner"
	RelationshipChild   = "Child"
	RelationshipParent  = "Parent"
)
