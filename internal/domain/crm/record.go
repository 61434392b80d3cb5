package crm

import (
	"strings"
)

// ---------------------------------------------------------------------------
// ProviderID identifies a concrete CRM backend
// ---------------------------------------------------------------------------

// ProviderID identifies a concrete CRM backend
type ProviderID string

const (
	// ProviderSalesforce is the Salesforce (optionally Financial Services Cloud) provider
	ProviderSalesforce ProviderID = "salesforce"
	// ProviderLocal stores CRM records in the service's own database
	ProviderLocal ProviderID = "local"
)

// DefaultProvider is used when no provider is configured
const DefaultProvider = ProviderSalesforce

// ParseProviderID normalizes a configured provider name. Matching is case-insensitive
// and ignores surrounding whitespace; an empty value yields DefaultProvider.
func ParseProviderID(s string) ProviderID {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultProvider
	}
	return ProviderID(strings.ToLower(s))
}

// String returns the string representation of ProviderID
func (p ProviderID) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// RecordRef and Capabilities
// ---------------------------------------------------------------------------

// RecordRef is a reference to a record created or changed in the CRM
type RecordRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Capabilities declares which optional features a provider supports.
// Callers must consult it before using features outside the required port.
type Capabilities struct {
	FinancialAccounts    bool `json:"financialAccounts"`
	ContactRelationships bool `json:"contactRelationships"`
	BatchOperations      bool `json:"batchOperations"`
	Workflows            bool `json:"workflows"`
	AuditLog             bool `json:"auditLog"`
}

// HasOptional reports whether the provider advertises any of the optional CRM operations
func (c Capabilities) HasOptional() bool {
	return c.FinancialAccounts || c.ContactRelationships
}

// BatchResult is the outcome of a batch create. Each input produces exactly one
// entry in either Records or Errors.
type BatchResult struct {
	Records []RecordRef `json:"records"`
	Errors  []string    `json:"errors"`
}

// NewBatchResult returns an empty batch result with non-nil slices
func NewBatchResult(capacity int) *BatchResult {
	return &BatchResult{
		Records: make([]RecordRef, 0, capacity),
		Errors:  make([]string, 0),
	}
}

// Total returns the number of outcomes recorded
func (r *BatchResult) Total() int {
	return len(r.Records) + len(r.Errors)
}

// StringPtr returns a pointer to s, or nil when s is empty.
// Providers use it for nullable relationship fields.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
