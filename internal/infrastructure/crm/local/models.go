package local

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// HouseholdModel is the persistence model for households.
// NameKey is the case-folded name used for exact-name lookups.
type HouseholdModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    string    `gorm:"size:64;not null;index:idx_crm_households_tenant_name,priority:1"`
	Name        string    `gorm:"size:255;not null"`
	NameKey     string    `gorm:"size:255;not null;index:idx_crm_households_tenant_name,priority:2"`
	Description string    `gorm:"type:text"`
	AdvisorName *string   `gorm:"size:255"`
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (HouseholdModel) TableName() string {
	return "crm_households"
}

// ToCanonical converts the model to a canonical household
func (m *HouseholdModel) ToCanonical() crm.Household {
	created := m.CreatedAt
	return crm.Household{
		ID:          m.ID.String(),
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   &created,
		AdvisorName: m.AdvisorName,
	}
}

// ContactModel is the persistence model for contacts
type ContactModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    string          `gorm:"size:64;not null;index"`
	FirstName   string          `gorm:"size:40"`
	LastName    string          `gorm:"size:80;not null"`
	Email       string          `gorm:"size:255;index"`
	Phone       string          `gorm:"size:40"`
	HouseholdID *uuid.UUID      `gorm:"type:uuid;index"`
	Household   *HouseholdModel `gorm:"foreignKey:HouseholdID"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ContactModel) TableName() string {
	return "crm_contacts"
}

// ToCanonical converts the model to a canonical contact
func (m *ContactModel) ToCanonical() crm.Contact {
	created := m.CreatedAt
	c := crm.Contact{
		ID:          m.ID.String(),
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Email:       m.Email,
		Phone:       m.Phone,
		HouseholdID: uuidString(m.HouseholdID),
		CreatedAt:   &created,
	}
	if m.Household != nil {
		c.HouseholdName = crm.StringPtr(m.Household.Name)
	}
	return c
}

// TaskModel is the persistence model for tasks
type TaskModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    string          `gorm:"size:64;not null;index"`
	Subject     string          `gorm:"size:255;not null"`
	Status      string          `gorm:"size:40;not null"`
	Priority    string          `gorm:"size:20;not null"`
	Description string          `gorm:"type:text"`
	DueDate     *time.Time      `gorm:"type:date"`
	HouseholdID *uuid.UUID      `gorm:"type:uuid;index"`
	Household   *HouseholdModel `gorm:"foreignKey:HouseholdID"`
	ContactID   *uuid.UUID      `gorm:"type:uuid"`
	CompletedAt *time.Time
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TaskModel) TableName() string {
	return "crm_tasks"
}

// ToCanonical converts the model to a canonical task
func (m *TaskModel) ToCanonical() crm.Task {
	created := m.CreatedAt
	t := crm.Task{
		ID:          m.ID.String(),
		Subject:     m.Subject,
		Status:      m.Status,
		Priority:    m.Priority,
		Description: m.Description,
		CreatedAt:   &created,
		DueDate:     m.DueDate,
		HouseholdID: uuidString(m.HouseholdID),
		ContactID:   uuidString(m.ContactID),
	}
	if m.Household != nil {
		t.HouseholdName = crm.StringPtr(m.Household.Name)
	}
	return t
}

// FinancialAccountModel is the persistence model for financial accounts
type FinancialAccountModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID       string          `gorm:"size:64;not null;index"`
	Name           string          `gorm:"size:80;not null"`
	AccountType    string          `gorm:"size:255;not null"`
	TaxStatus      string          `gorm:"size:255"`
	Balance        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	HouseholdID    *uuid.UUID      `gorm:"type:uuid;index"`
	Household      *HouseholdModel `gorm:"foreignKey:HouseholdID"`
	OwnerContactID *uuid.UUID      `gorm:"type:uuid"`
	Owner          *ContactModel   `gorm:"foreignKey:OwnerContactID"`
	Status         string          `gorm:"size:255"`
	OpenDate       *time.Time      `gorm:"type:date"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FinancialAccountModel) TableName() string {
	return "crm_financial_accounts"
}

// ToCanonical converts the model to a canonical financial account
func (m *FinancialAccountModel) ToCanonical() crm.FinancialAccount {
	a := crm.FinancialAccount{
		ID:          m.ID.String(),
		Name:        m.Name,
		AccountType: m.AccountType,
		TaxStatus:   m.TaxStatus,
		Balance:     m.Balance,
		HouseholdID: uuidString(m.HouseholdID),
		Status:      m.Status,
		OpenDate:    m.OpenDate,
	}
	if m.Household != nil {
		a.HouseholdName = crm.StringPtr(m.Household.Name)
	}
	if m.Owner != nil {
		name := (&crm.Contact{FirstName: m.Owner.FirstName, LastName: m.Owner.LastName}).FullName()
		a.OwnerName = crm.StringPtr(name)
	}
	return a
}

// ContactRelationshipModel links two contacts with a role
type ContactRelationshipModel struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         string    `gorm:"size:64;not null;index"`
	ContactID        uuid.UUID `gorm:"type:uuid;not null;index"`
	RelatedContactID uuid.UUID `gorm:"type:uuid;not null"`
	Role             string    `gorm:"size:40;not null"`
	Active           bool      `gorm:"not null;default:true"`
	CreatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ContactRelationshipModel) TableName() string {
	return "crm_contact_relationships"
}

// Models lists every model of the local provider, in dependency order
func Models() []any {
	return []any{
		&HouseholdModel{},
		&ContactModel{},
		&TaskModel{},
		&FinancialAccountModel{},
		&ContactRelationshipModel{},
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	return crm.StringPtr(id.String())
}
