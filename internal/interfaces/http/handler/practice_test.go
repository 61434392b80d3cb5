package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/advisorhub/backend/internal/application/practice"
	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

func TestPracticeHandler_OnboardAndDashboard(t *testing.T) {
	registry := newLocalRegistry(t, nil)
	service := practice.NewService(registry)
	api := newTestAPI(t, NewPracticeHandler(registry, service))

	w := api.do(http.MethodPost, "/api/v1/onboarding", practice.OnboardingRequest{
		Household: crm.HouseholdInput{Name: "Silva Family"},
		Members: []practice.OnboardingMember{
			{FirstName: "Ana", LastName: "Silva", Email: "ana@example.com"},
			{FirstName: "Rui", LastName: "Silva", Role: crm.RelationshipSpouse},
		},
		Accounts: []practice.OnboardingAccount{
			{Name: "Joint Brokerage", AccountType: "Brokerage", Balance: decimal.RequireFromString("1500.25")},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result practice.OnboardingResult
	decode(t, w, &result)
	assert.False(t, result.ExistingHousehold)
	assert.Len(t, result.Contacts.Records, 2)
	assert.True(t, result.RelationshipsAvailable)
	assert.Len(t, result.Relationships, 1)
	assert.True(t, result.FinancialAccountsAvailable)
	assert.Len(t, result.Accounts, 1)
	assert.NotEmpty(t, result.Tasks.Records)
	assert.Empty(t, result.Warnings)

	w = api.do(http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dashboard practice.Dashboard
	decode(t, w, &dashboard)
	assert.Equal(t, crm.ProviderLocal, dashboard.Provider)
	assert.Len(t, dashboard.Households, 1)
	assert.Equal(t, len(result.Tasks.Records), dashboard.OpenTasks)
	assert.True(t, dashboard.FinancialDataAvailable)
	assert.Equal(t, []string{"local"}, dashboard.FinancialSources)
	assert.True(t, decimal.RequireFromString("1500.25").Equal(dashboard.TotalAUM))
}

func TestPracticeHandler_OnboardInvalidRequest(t *testing.T) {
	registry := newLocalRegistry(t, nil)
	api := newTestAPI(t, NewPracticeHandler(registry, practice.NewService(registry)))

	w := api.do(http.MethodPost, "/api/v1/onboarding", practice.OnboardingRequest{
		Household: crm.HouseholdInput{Name: "Silva Family"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidInput, decode(t, w, nil).Error.Code)
}

// MockPracticeService is a testify mock of PracticeService
type MockPracticeService struct {
	mock.Mock
}

func (m *MockPracticeService) OnboardHousehold(ctx context.Context, cc crm.CallContext, req practice.OnboardingRequest) (*practice.OnboardingResult, error) {
	args := m.Called(ctx, cc, req)
	result, _ := args.Get(0).(*practice.OnboardingResult)
	return result, args.Error(1)
}

func (m *MockPracticeService) Dashboard(ctx context.Context, cc crm.CallContext, limit, offset int) (*practice.Dashboard, error) {
	args := m.Called(ctx, cc, limit, offset)
	result, _ := args.Get(0).(*practice.Dashboard)
	return result, args.Error(1)
}

func TestPracticeHandler_OnboardStepFailureReturnsPartial(t *testing.T) {
	registry := newLocalRegistry(t, nil)
	service := new(MockPracticeService)
	api := newTestAPI(t, NewPracticeHandler(registry, service))

	partial := &practice.OnboardingResult{Household: crm.RecordRef{ID: "hh-1", URL: "/api/v1/households/hh-1"}}
	service.On("OnboardHousehold", mock.Anything, mock.MatchedBy(func(cc crm.CallContext) bool {
		return cc.TenantID == testTenant && cc.UserID == "advisor-1"
	}), mock.Anything).Return(nil, &practice.OnboardingError{
		Step:    "contacts",
		Partial: partial,
		Err:     &crm.MutationError{Provider: crm.ProviderSalesforce, Message: "REQUIRED_FIELD_MISSING", StatusCode: 400, ObjectType: "Contact"},
	})

	w := api.do(http.MethodPost, "/api/v1/onboarding", practice.OnboardingRequest{
		Household: crm.HouseholdInput{Name: "Silva Family"},
		Members:   []practice.OnboardingMember{{LastName: "Silva"}},
	})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var got practice.OnboardingResult
	resp := decode(t, w, &got)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeCRMMutation, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "REQUIRED_FIELD_MISSING")
	assert.Equal(t, "hh-1", got.Household.ID)
	service.AssertExpectations(t)
}

func TestPracticeHandler_DashboardFailure(t *testing.T) {
	registry := newLocalRegistry(t, nil)
	service := new(MockPracticeService)
	api := newTestAPI(t, NewPracticeHandler(registry, service))

	service.On("Dashboard", mock.Anything, mock.Anything, 10, 20).Return(nil, errors.New("boom"))

	w := api.do(http.MethodGet, "/api/v1/dashboard?limit=10&offset=20", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, dto.ErrCodeInternal, decode(t, w, nil).Error.Code)
	service.AssertExpectations(t)
}
