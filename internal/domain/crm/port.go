package crm

import (
	"context"
)

// Credentials is the provider-specific authentication material for one call.
// Each provider defines its own concrete type; ProviderID tags which one.
type Credentials interface {
	ProviderID() ProviderID
}

// CallContext is passed to every port operation
type CallContext struct {
	Credentials Credentials
	TenantID    string
	UserID      string
}

// CRM is the required port every provider implements. Paginated reads fetch
// one row beyond limit to compute HasMore; batch creates report one outcome
// per input. Errors are taxonomy errors unless they come from the transport
// or the context, which are returned unchanged.
type CRM interface {
	// ProviderID returns the provider this adapter talks to
	ProviderID() ProviderID
	// Capabilities declares the optional features of the provider
	Capabilities() Capabilities

	// SearchContacts returns contacts whose name or email contains query.
	// A limit <= 0 means DefaultContactLimit.
	SearchContacts(ctx context.Context, cc CallContext, query string, limit int) ([]Contact, error)
	// CreateContacts creates each contact independently
	CreateContacts(ctx context.Context, cc CallContext, contacts []ContactInput) (*BatchResult, error)

	// SearchHouseholds returns a page of households whose name contains query
	SearchHouseholds(ctx context.Context, cc CallContext, query string, limit, offset int) (*HouseholdPage, error)
	// GetHouseholdDetail returns the household, its contacts and its tasks.
	// The Household field is nil when id matches nothing.
	GetHouseholdDetail(ctx context.Context, cc CallContext, id string) (*HouseholdDetail, error)
	// CreateHousehold creates a household
	CreateHousehold(ctx context.Context, cc CallContext, input HouseholdInput) (*RecordRef, error)
	// UpdateHousehold applies a partial update
	UpdateHousehold(ctx context.Context, cc CallContext, id string, update HouseholdUpdate) (*RecordRef, error)
	// FindHouseholdByName returns the household with exactly this name, or nil
	FindHouseholdByName(ctx context.Context, cc CallContext, name string) (*RecordRef, error)

	// QueryTasks returns recent tasks and recent households, each paged
	QueryTasks(ctx context.Context, cc CallContext, limit, offset int) (*TaskOverview, error)
	// CreateTask creates one task
	CreateTask(ctx context.Context, cc CallContext, input TaskInput) (*RecordRef, error)
	// CreateTasksBatch creates each task independently
	CreateTasksBatch(ctx context.Context, cc CallContext, tasks []TaskInput) (*BatchResult, error)
	// CompleteTask marks a task completed
	CompleteTask(ctx context.Context, cc CallContext, taskID string) (*RecordRef, error)
}

// OptionalCapabilities is implemented, as a whole, by providers that support
// contact relationships and financial accounts. When the feature is missing
// at runtime the operations degrade instead of failing: a nil reference for
// relationships and FSCAvailable=false for financial accounts.
type OptionalCapabilities interface {
	// CreateContactRelationship links two contacts. Returns nil, nil when the
	// provider lacks relationship support.
	CreateContactRelationship(ctx context.Context, cc CallContext, contactID, relatedContactID, role string) (*RecordRef, error)
	// CreateFinancialAccounts creates accounts, stopping at the first sign the feature is absent
	CreateFinancialAccounts(ctx context.Context, cc CallContext, accounts []FinancialAccountInput) (*FinancialAccountsCreateResult, error)
	// QueryFinancialAccounts returns accounts for the given households, or all when empty
	QueryFinancialAccounts(ctx context.Context, cc CallContext, householdIDs []string) (*FinancialAccountsResult, error)
}

// Optional returns the optional capability set when the provider both declares
// and implements it.
func Optional(c CRM) (OptionalCapabilities, bool) {
	if c == nil || !c.Capabilities().HasOptional() {
		return nil, false
	}
	opt, ok := c.(OptionalCapabilities)
	return opt, ok
}

// CheckCredentials returns the credentials as T, or an AuthError when they are
// missing or belong to another provider.
func CheckCredentials[T Credentials](provider ProviderID, cc CallContext) (T, error) {
	var zero T
	if cc.Credentials == nil {
		return zero, &AuthError{Provider: provider, Message: "no credentials in call context"}
	}
	creds, ok := cc.Credentials.(T)
	if !ok || creds.ProviderID() != provider {
		return zero, &AuthError{
			Provider: provider,
			Message:  "credentials issued for " + cc.Credentials.ProviderID().String(),
			Err:      ErrCredentialsMismatch,
		}
	}
	return creds, nil
}
