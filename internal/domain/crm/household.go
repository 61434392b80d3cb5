package crm

import (
	"encoding/json"
	"time"
)

// Household is a family or client group managed together
type Household struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	CreatedAt   *time.Time      `json:"createdAt"`
	AdvisorName *string         `json:"advisorName"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// HouseholdInput is the data needed to create a household
type HouseholdInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=32000"`
	AdvisorName string `json:"advisorName" validate:"max=255"`
}

// Validate checks the input before it is sent to a provider
func (in HouseholdInput) Validate() error {
	return validateStruct(in)
}

// HouseholdUpdate is a partial update; nil fields are left unchanged
type HouseholdUpdate struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=32000"`
}

// IsEmpty reports whether the update changes nothing
func (u HouseholdUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil
}

// Validate checks that at least one field is set and that set fields are well formed
func (u HouseholdUpdate) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	return validateStruct(u)
}

// HouseholdPage is one page of a household search
type HouseholdPage struct {
	Households []Household `json:"households"`
	HasMore    bool        `json:"hasMore"`
}

// HouseholdDetail is a household with its member contacts and related tasks.
// Household is nil when the id matched nothing.
type HouseholdDetail struct {
	Household *Household `json:"household"`
	Contacts  []Contact  `json:"contacts"`
	Tasks     []Task     `json:"tasks"`
}
