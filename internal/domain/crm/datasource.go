package crm

import (
	"context"

	"github.com/shopspring/decimal"
)

// DataSource is a read-only supplementary source of financial data, such as a
// custodian feed, used alongside the CRM.
type DataSource interface {
	// ID names the source for logs and dashboards
	ID() string
	// QueryFinancialAccounts returns accounts for the given households, or all when empty
	QueryFinancialAccounts(ctx context.Context, householdIDs []string) (*DataSourceResult, error)
}

// DataSourceResult mirrors FinancialAccountsResult without the availability flag
type DataSourceResult struct {
	Accounts       []FinancialAccount         `json:"accounts"`
	TotalAUM       decimal.Decimal            `json:"totalAum"`
	AUMByHousehold map[string]decimal.Decimal `json:"aumByHousehold"`
}

// NewDataSourceResult builds a result and its AUM rollup
func NewDataSourceResult(accounts []FinancialAccount) *DataSourceResult {
	if accounts == nil {
		accounts = []FinancialAccount{}
	}
	total, byHousehold := SummarizeAUM(accounts)
	return &DataSourceResult{Accounts: accounts, TotalAUM: total, AUMByHousehold: byHousehold}
}
