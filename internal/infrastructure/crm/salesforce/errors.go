package salesforce

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// featureAbsentMarkers are substrings Salesforce uses when an object or field
// type is not installed in the org. Matching is best effort.
var featureAbsentMarkers = []string{
	"INVALID_TYPE",
	"NOT_FOUND",
	"sObject type",
}

// authErrorCodes are error codes that mean the session is unusable
var authErrorCodes = map[string]bool{
	"INVALID_SESSION_ID":   true,
	"INVALID_AUTH_HEADER":  true,
	"INVALID_GRANT":        true,
	"API_DISABLED_FOR_ORG": true,
}

func isAuthFailure(apiErr *APIError) bool {
	return apiErr.StatusCode == http.StatusUnauthorized || authErrorCodes[apiErr.ErrorCode]
}

// mapQueryError translates a failed read into the taxonomy.
// Errors that did not come from the API are returned unchanged.
func mapQueryError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if isAuthFailure(apiErr) {
			return &crm.AuthError{Provider: crm.ProviderSalesforce, Message: apiErr.Message, Err: err}
		}
		return &crm.QueryError{Provider: crm.ProviderSalesforce, Message: apiErr.Message, StatusCode: apiErr.StatusCode, Err: err}
	}
	if errors.Is(err, ErrInvalidResponse) {
		return &crm.QueryError{Provider: crm.ProviderSalesforce, Message: err.Error(), Err: err}
	}
	return err
}

// mapMutationError translates a failed write on object into the taxonomy.
// Errors that did not come from the API are returned unchanged.
func mapMutationError(err error, object string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if isAuthFailure(apiErr) {
			return &crm.AuthError{Provider: crm.ProviderSalesforce, Message: apiErr.Message, Err: err}
		}
		return &crm.MutationError{
			Provider:   crm.ProviderSalesforce,
			Message:    apiErr.Message,
			StatusCode: apiErr.StatusCode,
			ObjectType: object,
			Err:        err,
		}
	}
	if errors.Is(err, ErrInvalidResponse) {
		return &crm.MutationError{Provider: crm.ProviderSalesforce, Message: err.Error(), ObjectType: object, Err: err}
	}
	return err
}

// isFeatureAbsent reports whether err says the object or field type does not
// exist in the org. Only API errors are considered.
func isFeatureAbsent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, marker := range featureAbsentMarkers {
		if strings.Contains(apiErr.ErrorCode, marker) || strings.Contains(apiErr.Message, marker) {
			return true
		}
	}
	return false
}

// batchErrorMessage formats a per-item failure for BatchResult.Errors
func batchErrorMessage(index int, err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode != "" {
		return fmt.Sprintf("record %d: %s: %s", index, apiErr.ErrorCode, apiErr.Message)
	}
	return fmt.Sprintf("record %d: %v", index, err)
}
