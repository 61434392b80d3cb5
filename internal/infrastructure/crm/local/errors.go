package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"gorm.io/gorm"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// Object names reported in mutation errors
const (
	objectHousehold           = "Household"
	objectContact             = "Contact"
	objectTask                = "Task"
	objectFinancialAccount    = "FinancialAccount"
	objectContactRelationship = "ContactRelationship"
)

// errNotFound marks a write against a record that does not exist for the tenant
var errNotFound = errors.New("record not found")

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// queryError maps a database read failure into the taxonomy
func queryError(err error) error {
	if isContextErr(err) {
		return err
	}
	return &crm.QueryError{
		Provider:   crm.ProviderLocal,
		Message:    err.Error(),
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// mutationError maps a database write failure on object into the taxonomy
func mutationError(err error, object string) error {
	if isContextErr(err) {
		return err
	}
	status := http.StatusInternalServerError
	if errors.Is(err, errNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		status = http.StatusNotFound
	}
	return &crm.MutationError{
		Provider:   crm.ProviderLocal,
		Message:    err.Error(),
		StatusCode: status,
		ObjectType: object,
		Err:        err,
	}
}

// parseID parses a record id, wrapping failures in crm.ErrInvalidInput
func parseID(kind, id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed %s id %q", crm.ErrInvalidInput, kind, id)
	}
	return parsed, nil
}

// parseOptionalID parses id when set
func parseOptionalID(kind string, id *string) (*uuid.UUID, error) {
	if id == nil || *id == "" {
		return nil, nil
	}
	parsed, err := parseID(kind, *id)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// likeEscaper escapes LIKE wildcards so user input matches literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern for a bound parameter
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
}

// nameKey folds a household name for exact-name comparison: case folded,
// inner whitespace collapsed
func nameKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}
