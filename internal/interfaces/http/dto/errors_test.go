package dto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/advisorhub/backend/internal/domain/crm"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		provider string
	}{
		{
			name:     "not supported",
			err:      &crm.NotSupportedError{Provider: crm.ProviderLocal, Operation: "workflows"},
			status:   http.StatusNotImplemented,
			code:     ErrCodeCRMNotSupported,
			provider: "local",
		},
		{
			name:     "auth",
			err:      fmt.Errorf("wrapped: %w", &crm.AuthError{Provider: crm.ProviderSalesforce, Message: "expired"}),
			status:   http.StatusUnauthorized,
			code:     ErrCodeCRMAuth,
			provider: "salesforce",
		},
		{
			name:     "query",
			err:      &crm.QueryError{Provider: crm.ProviderSalesforce, Message: "bad soql", StatusCode: 400},
			status:   http.StatusBadGateway,
			code:     ErrCodeCRMQuery,
			provider: "salesforce",
		},
		{
			name:     "mutation",
			err:      &crm.MutationError{Provider: crm.ProviderLocal, Message: "missing", StatusCode: 404, ObjectType: "Task"},
			status:   http.StatusBadGateway,
			code:     ErrCodeCRMMutation,
			provider: "local",
		},
		{
			name:   "invalid input",
			err:    fmt.Errorf("%w: lastName is required", crm.ErrInvalidInput),
			status: http.StatusBadRequest,
			code:   ErrCodeInvalidInput,
		},
		{
			name:   "deadline",
			err:    context.DeadlineExceeded,
			status: http.StatusGatewayTimeout,
			code:   ErrCodeTimeout,
		},
		{
			name:   "unclassified",
			err:    errors.New("dial tcp: connection refused"),
			status: http.StatusInternalServerError,
			code:   ErrCodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, info := FromError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, info.Code)
			assert.Equal(t, tt.provider, info.Provider)
		})
	}
}

func TestFromError_HidesInternalDetail(t *testing.T) {
	_, info := FromError(errors.New("pq: password authentication failed for user advisor"))

	assert.Equal(t, "internal server error", info.Message)
}

func TestNewPageResponse(t *testing.T) {
	resp := NewPageResponse([]string{"a"}, 10, 20, true)

	assert.True(t, resp.Success)
	assert.Equal(t, &PageInfo{Limit: 10, Offset: 20, HasMore: true}, resp.Page)
	assert.Nil(t, resp.Error)
}
