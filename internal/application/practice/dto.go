package practice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// ---------------------------------------------------------------------------
// Onboarding
// ---------------------------------------------------------------------------

// OnboardingMember is a person joining the household. The first member is
// the primary contact; Role relates later members to the primary.
type OnboardingMember struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
}

// OnboardingAccount is a financial account to open for the household.
// Accounts without an owner are assigned to the primary contact.
type OnboardingAccount struct {
	Name        string          `json:"name"`
	AccountType string          `json:"accountType"`
	TaxStatus   string          `json:"taxStatus"`
	Balance     decimal.Decimal `json:"balance"`
	Status      string          `json:"status"`
	OpenDate    *time.Time      `json:"openDate"`
}

// OnboardingTask is a follow-up created for the household
type OnboardingTask struct {
	Subject     string     `json:"subject"`
	Priority    string     `json:"priority"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
}

// OnboardingRequest describes a new client household
type OnboardingRequest struct {
	Household crm.HouseholdInput  `json:"household"`
	Members   []OnboardingMember  `json:"members"`
	Accounts  []OnboardingAccount `json:"accounts"`
	// Tasks replaces the default onboarding checklist when set
	Tasks []OnboardingTask `json:"tasks"`
}

// OnboardingResult reports what each onboarding step produced
type OnboardingResult struct {
	Household         crm.RecordRef   `json:"household"`
	ExistingHousehold bool            `json:"existingHousehold"`
	Contacts          crm.BatchResult `json:"contacts"`
	Relationships     []crm.RecordRef `json:"relationships"`
	// RelationshipsAvailable is false when the provider lacks relationship support
	RelationshipsAvailable bool            `json:"relationshipsAvailable"`
	Accounts               []crm.RecordRef `json:"accounts"`
	AccountErrors          []string        `json:"accountErrors"`
	// FinancialAccountsAvailable is false when the provider lacks financial accounts
	FinancialAccountsAvailable bool            `json:"financialAccountsAvailable"`
	Tasks                      crm.BatchResult `json:"tasks"`
	Warnings                   []string        `json:"warnings"`
}

func newOnboardingResult() *OnboardingResult {
	return &OnboardingResult{
		Contacts:      *crm.NewBatchResult(0),
		Relationships: []crm.RecordRef{},
		Accounts:      []crm.RecordRef{},
		AccountErrors: []string{},
		Tasks:         *crm.NewBatchResult(0),
		Warnings:      []string{},
	}
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// Dashboard is the advisor's landing view
type Dashboard struct {
	Provider          crm.ProviderID   `json:"provider"`
	Capabilities      crm.Capabilities `json:"capabilities"`
	Tasks             []crm.Task       `json:"tasks"`
	Households        []crm.Household  `json:"households"`
	TasksHasMore      bool             `json:"tasksHasMore"`
	HouseholdsHasMore bool             `json:"householdsHasMore"`
	OpenTasks         int              `json:"openTasks"`
	OverdueTasks      int              `json:"overdueTasks"`
	// FinancialDataAvailable is false when the CRM lacks financial accounts and
	// no data source is configured. A source that failed still counts as
	// available and is listed in FinancialErrors.
	FinancialDataAvailable bool                       `json:"financialDataAvailable"`
	FinancialSources       []string                   `json:"financialSources"`
	FinancialErrors        []FinancialSourceError     `json:"financialErrors"`
	AccountCount           int                        `json:"accountCount"`
	TotalAUM               decimal.Decimal            `json:"totalAum"`
	AUMByHousehold         map[string]decimal.Decimal `json:"aumByHousehold"`
}

// FinancialSourceError is a financial source whose read failed. AUM totals
// leave its accounts out.
type FinancialSourceError struct {
	Source  string        `json:"source"`
	Kind    crm.ErrorKind `json:"kind,omitempty"`
	Message string        `json:"message"`
}

func newFinancialSourceError(source string, err error) FinancialSourceError {
	fe := FinancialSourceError{Source: source, Message: err.Error()}
	if e, ok := crm.AsError(err); ok {
		fe.Kind = e.Kind()
	}
	return fe
}
