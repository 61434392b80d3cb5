package crm

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeAUM(t *testing.T) {
	accounts := []FinancialAccount{
		{ID: "a1", Balance: decimal.NewFromInt(1000), HouseholdID: StringPtr("h1")},
		{ID: "a2", Balance: decimal.RequireFromString("250.50"), HouseholdID: StringPtr("h1")},
		{ID: "a3", Balance: decimal.NewFromInt(400), HouseholdID: StringPtr("h2")},
		{ID: "a4", Balance: decimal.NewFromInt(50)},
	}

	total, byHousehold := SummarizeAUM(accounts)

	assert.True(t, total.Equal(decimal.RequireFromString("1700.50")))
	assert.Len(t, byHousehold, 2)
	assert.True(t, byHousehold["h1"].Equal(decimal.RequireFromString("1250.50")))
	assert.True(t, byHousehold["h2"].Equal(decimal.NewFromInt(400)))
}

func TestUnavailableFinancialAccounts(t *testing.T) {
	res := UnavailableFinancialAccounts()
	assert.False(t, res.FSCAvailable)
	assert.NotNil(t, res.Accounts)
	assert.Empty(t, res.Accounts)
	assert.NotNil(t, res.AUMByHousehold)
	assert.True(t, res.TotalAUM.IsZero())
}

func TestInputValidation(t *testing.T) {
	t.Run("contact requires last name and household", func(t *testing.T) {
		err := ContactInput{FirstName: "Ann"}.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Contains(t, err.Error(), "LastName")
		assert.Contains(t, err.Error(), "HouseholdID")
	})

	t.Run("contact rejects malformed email", func(t *testing.T) {
		err := ContactInput{LastName: "Lee", HouseholdID: "h1", Email: "nope"}.Validate()
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("valid contact", func(t *testing.T) {
		assert.NoError(t, ContactInput{LastName: "Lee", HouseholdID: "h1", Email: "lee@example.com"}.Validate())
	})

	t.Run("task status must be known", func(t *testing.T) {
		err := TaskInput{Subject: "Review", HouseholdID: "h1", Status: "Done"}.Validate()
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, TaskInput{Subject: "Review", HouseholdID: "h1", Status: TaskStatusInProgress}.Validate())
	})

	t.Run("empty household update", func(t *testing.T) {
		assert.ErrorIs(t, HouseholdUpdate{}.Validate(), ErrEmptyUpdate)
		name := "Smith Family"
		assert.NoError(t, HouseholdUpdate{Name: &name}.Validate())
	})

	t.Run("negative balance", func(t *testing.T) {
		in := FinancialAccountInput{Name: "IRA", AccountType: "IRA", HouseholdID: "h1", Balance: decimal.NewFromInt(-1)}
		assert.ErrorIs(t, in.Validate(), ErrNegativeBalance)
	})
}

func TestTaskInput_WithDefaults(t *testing.T) {
	in := TaskInput{Subject: "Call", HouseholdID: "h1"}.WithDefaults()
	assert.Equal(t, TaskStatusNotStarted, in.Status)
	assert.Equal(t, TaskPriorityNormal, in.Priority)

	in = TaskInput{Subject: "Call", HouseholdID: "h1", Priority: TaskPriorityHigh}.WithDefaults()
	assert.Equal(t, TaskPriorityHigh, in.Priority)
}

func TestParseProviderID(t *testing.T) {
	assert.Equal(t, ProviderSalesforce, ParseProviderID(""))
	assert.Equal(t, ProviderSalesforce, ParseProviderID("  SalesForce "))
	assert.Equal(t, ProviderLocal, ParseProviderID("LOCAL"))
	assert.Equal(t, ProviderID("hubspot"), ParseProviderID("HubSpot"))
}

// ---------------------------------------------------------------------------
// Optional capability detection
// ---------------------------------------------------------------------------

type stubCreds struct{ provider ProviderID }

func (c stubCreds) ProviderID() ProviderID { return c.provider }

type requiredOnly struct {
	CRM
	caps Capabilities
}

func (r requiredOnly) Capabilities() Capabilities { return r.caps }

type withOptional struct {
	requiredOnly
}

func (withOptional) CreateContactRelationship(context.Context, CallContext, string, string, string) (*RecordRef, error) {
	return nil, nil
}

func (withOptional) CreateFinancialAccounts(context.Context, CallContext, []FinancialAccountInput) (*FinancialAccountsCreateResult, error) {
	return &FinancialAccountsCreateResult{FSCAvailable: true}, nil
}

func (withOptional) QueryFinancialAccounts(context.Context, CallContext, []string) (*FinancialAccountsResult, error) {
	return NewFinancialAccountsResult(nil), nil
}

func TestOptional(t *testing.T) {
	_, ok := Optional(requiredOnly{caps: Capabilities{FinancialAccounts: true}})
	assert.False(t, ok, "declares but does not implement")

	_, ok = Optional(withOptional{requiredOnly{caps: Capabilities{}}})
	assert.False(t, ok, "implements but does not declare")

	opt, ok := Optional(withOptional{requiredOnly{caps: Capabilities{FinancialAccounts: true, ContactRelationships: true}}})
	require.True(t, ok)
	assert.NotNil(t, opt)

	_, ok = Optional(nil)
	assert.False(t, ok)
}

func TestCheckCredentials(t *testing.T) {
	creds, err := CheckCredentials[stubCreds](ProviderLocal, CallContext{Credentials: stubCreds{ProviderLocal}})
	require.NoError(t, err)
	assert.Equal(t, ProviderLocal, creds.ProviderID())

	_, err = CheckCredentials[stubCreds](ProviderLocal, CallContext{Credentials: stubCreds{ProviderSalesforce}})
	assert.True(t, IsKind(err, KindAuth))
	assert.ErrorIs(t, err, ErrCredentialsMismatch)

	_, err = CheckCredentials[stubCreds](ProviderLocal, CallContext{})
	assert.True(t, IsKind(err, KindAuth))
}
