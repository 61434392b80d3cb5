package crm

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// FinancialAccount is an investment, bank or insurance account held by a household
type FinancialAccount struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	AccountType   string          `json:"accountType"`
	TaxStatus     string          `json:"taxStatus"`
	Balance       decimal.Decimal `json:"balance"`
	HouseholdID   *string         `json:"householdId"`
	HouseholdName *string         `json:"householdName"`
	OwnerName     *string         `json:"ownerName"`
	Status        string          `json:"status"`
	OpenDate      *time.Time      `json:"openDate"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// FinancialAccountInput is the data needed to open a financial account record
type FinancialAccountInput struct {
	Name           string          `json:"name" validate:"required,max=80"`
	AccountType    string          `json:"accountType" validate:"required,max=255"`
	TaxStatus      string          `json:"taxStatus" validate:"max=255"`
	Balance        decimal.Decimal `json:"balance"`
	HouseholdID    string          `json:"householdId" validate:"required"`
	OwnerContactID *string         `json:"ownerContactId"`
	Status         string          `json:"status" validate:"max=255"`
	OpenDate       *time.Time      `json:"openDate"`
}

// Validate checks the input before it is sent to a provider
func (in FinancialAccountInput) Validate() error {
	if in.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	return validateStruct(in)
}

// FinancialAccountsCreateResult is the outcome of a financial account batch create.
// FSCAvailable is false when the provider lacks the financial account feature;
// Accounts then holds whatever was created before that was detected.
type FinancialAccountsCreateResult struct {
	Accounts     []RecordRef `json:"accounts"`
	Errors       []string    `json:"errors"`
	FSCAvailable bool        `json:"fscAvailable"`
}

// FinancialAccountsResult is a financial account read with assets under management rolled up
type FinancialAccountsResult struct {
	Accounts       []FinancialAccount         `json:"accounts"`
	TotalAUM       decimal.Decimal            `json:"totalAum"`
	AUMByHousehold map[string]decimal.Decimal `json:"aumByHousehold"`
	FSCAvailable   bool                       `json:"fscAvailable"`
}

// UnavailableFinancialAccounts is the result returned when the feature is absent
func UnavailableFinancialAccounts() *FinancialAccountsResult {
	return &FinancialAccountsResult{
		Accounts:       []FinancialAccount{},
		TotalAUM:       decimal.Zero,
		AUMByHousehold: map[string]decimal.Decimal{},
		FSCAvailable:   false,
	}
}

// SummarizeAUM totals balances overall and per household. Accounts without a
// household only count toward the total.
func SummarizeAUM(accounts []FinancialAccount) (decimal.Decimal, map[string]decimal.Decimal) {
	total := decimal.Zero
	byHousehold := make(map[string]decimal.Decimal)
	for _, acc := range accounts {
		total = total.Add(acc.Balance)
		if acc.HouseholdID == nil || *acc.HouseholdID == "" {
			continue
		}
		byHousehold[*acc.HouseholdID] = byHousehold[*acc.HouseholdID].Add(acc.Balance)
	}
	return total, byHousehold
}

// NewFinancialAccountsResult builds an available result and its AUM rollup
func NewFinancialAccountsResult(accounts []FinancialAccount) *FinancialAccountsResult {
	if accounts == nil {
		accounts = []FinancialAccount{}
	}
	total, byHousehold := SummarizeAUM(accounts)
	return &FinancialAccountsResult{
		Accounts:       accounts,
		TotalAUM:       total,
		AUMByHousehold: byHousehold,
		FSCAvailable:   true,
	}
}
