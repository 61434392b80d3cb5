package crm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyUpdate is returned when a partial update sets no fields
	ErrEmptyUpdate = errors.New("crm: update has no fields set")
	// ErrNegativeBalance is returned when an account balance is below zero
	ErrNegativeBalance = errors.New("crm: balance must not be negative")
	// ErrCredentialsMismatch is returned when an adapter receives another provider's credentials
	ErrCredentialsMismatch = errors.New("crm: credentials belong to a different provider")
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies provider failures
type ErrorKind string

const (
	KindNotSupported ErrorKind = "NOT_SUPPORTED"
	KindAuth         ErrorKind = "AUTH"
	KindQuery        ErrorKind = "QUERY"
	KindMutation     ErrorKind = "MUTATION"
)

// Error is implemented by every taxonomy error. Adapters translate provider
// failures into one of these before returning.
type Error interface {
	error
	Kind() ErrorKind
	HTTPStatus() int
	ProviderName() ProviderID
}

// NotSupportedError means the active provider does not implement the operation
type NotSupportedError struct {
	Provider  ProviderID
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("crm: %s does not support %s", e.Provider, e.Operation)
}

func (e *NotSupportedError) Kind() ErrorKind          { return KindNotSupported }
func (e *NotSupportedError) HTTPStatus() int          { return http.StatusNotImplemented }
func (e *NotSupportedError) ProviderName() ProviderID { return e.Provider }

// AuthError means credentials are missing, expired or rejected
type AuthError struct {
	Provider ProviderID
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("crm: %s authentication failed: %s", e.Provider, e.Message)
}

func (e *AuthError) Unwrap() error            { return e.Err }
func (e *AuthError) Kind() ErrorKind          { return KindAuth }
func (e *AuthError) HTTPStatus() int          { return http.StatusUnauthorized }
func (e *AuthError) ProviderName() ProviderID { return e.Provider }

// QueryError is a failed read. StatusCode carries the provider's status when known.
type QueryError struct {
	Provider   ProviderID
	Message    string
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crm: %s query failed (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm: %s query failed: %s", e.Provider, e.Message)
}

func (e *QueryError) Unwrap() error            { return e.Err }
func (e *QueryError) Kind() ErrorKind          { return KindQuery }
func (e *QueryError) HTTPStatus() int          { return http.StatusBadGateway }
func (e *QueryError) ProviderName() ProviderID { return e.Provider }

// MutationError is a failed create or update of ObjectType
type MutationError struct {
	Provider   ProviderID
	Message    string
	StatusCode int
	ObjectType string
	Err        error
}

func (e *MutationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crm: %s %s mutation failed (status %d): %s", e.Provider, e.ObjectType, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("crm: %s %s mutation failed: %s", e.Provider, e.ObjectType, e.Message)
}

func (e *MutationError) Unwrap() error            { return e.Err }
func (e *MutationError) Kind() ErrorKind          { return KindMutation }
func (e *MutationError) HTTPStatus() int          { return http.StatusBadGateway }
func (e *MutationError) ProviderName() ProviderID { return e.Provider }

// AsError extracts a taxonomy error from err's chain
func AsError(err error) (Error, bool) {
	var notSupported *NotSupportedError
	var authErr *AuthError
	var queryErr *QueryError
	var mutationErr *MutationError
	switch {
	case errors.As(err, &notSupported):
		return notSupported, true
	case errors.As(err, &authErr):
		return authErr, true
	case errors.As(err, &queryErr):
		return queryErr, true
	case errors.As(err, &mutationErr):
		return mutationErr, true
	default:
		return nil, false
	}
}

// IsKind reports whether err carries a taxonomy error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind() == kind
}

// HTTPStatus maps err to the HTTP status the API should answer with.
// Invalid input maps to 400 and anything outside the taxonomy to 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if e, ok := AsError(err); ok {
		return e.HTTPStatus()
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmptyUpdate) || errors.Is(err, ErrNegativeBalance) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
