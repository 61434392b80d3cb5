package dto

import (
	"context"
	"errors"
	"net/http"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// Error codes. Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal        = "ERR_INTERNAL"
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeUnauthorized    = "ERR_UNAUTHORIZED"
	ErrCodeNotFound        = "ERR_NOT_FOUND"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeTimeout         = "ERR_TIMEOUT"

	ErrCodeCRMNotSupported = "ERR_CRM_NOT_SUPPORTED"
	ErrCodeCRMAuth         = "ERR_CRM_AUTH"
	ErrCodeCRMQuery        = "ERR_CRM_QUERY"
	ErrCodeCRMMutation     = "ERR_CRM_MUTATION"
)

var kindCodes = map[crm.ErrorKind]string{
	crm.KindNotSupported: ErrCodeCRMNotSupported,
	crm.KindAuth:         ErrCodeCRMAuth,
	crm.KindQuery:        ErrCodeCRMQuery,
	crm.KindMutation:     ErrCodeCRMMutation,
}

// FromError maps err to an HTTP status and error body. Taxonomy errors keep
// the provider's message; unclassified errors are reported without detail.
func FromError(err error) (int, ErrorInfo) {
	status := crm.HTTPStatus(err)
	if e, ok := crm.AsError(err); ok {
		return status, ErrorInfo{
			Code:     kindCodes[e.Kind()],
			Message:  e.Error(),
			Provider: e.ProviderName().String(),
		}
	}
	switch {
	case status == http.StatusBadRequest:
		return status, ErrorInfo{Code: ErrCodeInvalidInput, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorInfo{Code: ErrCodeTimeout, Message: "upstream request timed out"}
	default:
		return http.StatusInternalServerError, ErrorInfo{Code: ErrCodeInternal, Message: "internal server error"}
	}
}
