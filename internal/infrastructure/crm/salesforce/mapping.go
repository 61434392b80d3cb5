package salesforce

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/advisorhub/backend/internal/domain/crm"
)

const (
	// dateTimeLayout is the format of Salesforce datetime fields
	dateTimeLayout = "2006-01-02T15:04:05.000-0700"
	// dateLayout is the format of Salesforce date fields
	dateLayout = "2006-01-02"
)

// ---------------------------------------------------------------------------
// Field helpers
// ---------------------------------------------------------------------------

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	v := *p
	return &v
}

func refName(r *nameRef) *string {
	if r == nil {
		return nil
	}
	return nonEmpty(r.Name)
}

// parseDateTime parses a datetime field, returning nil when absent or malformed
func parseDateTime(p *string) *time.Time {
	if p == nil || *p == "" {
		return nil
	}
	for _, layout := range []string{dateTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, *p); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// parseDate parses a date field, returning nil when absent or malformed
func parseDate(p *string) *time.Time {
	if p == nil || *p == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, *p)
	if err != nil {
		return nil
	}
	return &t
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

// ---------------------------------------------------------------------------
// Provider record to canonical record
// ---------------------------------------------------------------------------

func toContact(rec sfContact) crm.Contact {
	var householdName *string
	if rec.Account != nil {
		householdName = nonEmpty(rec.Account.Name)
	}
	return crm.Contact{
		ID:            rec.ID,
		FirstName:     str(rec.FirstName),
		LastName:      str(rec.LastName),
		Email:         str(rec.Email),
		Phone:         str(rec.Phone),
		HouseholdID:   nonEmpty(rec.AccountID),
		HouseholdName: householdName,
		CreatedAt:     parseDateTime(rec.CreatedDate),
	}
}

func toHousehold(rec sfAccount) crm.Household {
	return crm.Household{
		ID:          rec.ID,
		Name:        str(rec.Name),
		Description: str(rec.Description),
		CreatedAt:   parseDateTime(rec.CreatedDate),
		AdvisorName: refName(rec.Owner),
	}
}

func toTask(rec sfTask) crm.Task {
	return crm.Task{
		ID:            rec.ID,
		Subject:       str(rec.Subject),
		Status:        str(rec.Status),
		Priority:      str(rec.Priority),
		Description:   str(rec.Description),
		CreatedAt:     parseDateTime(rec.CreatedDate),
		DueDate:       parseDate(rec.ActivityDate),
		HouseholdID:   nonEmpty(rec.WhatID),
		HouseholdName: refName(rec.What),
		ContactID:     nonEmpty(rec.WhoID),
	}
}

func toFinancialAccount(rec sfFinancialAccount) crm.FinancialAccount {
	balance := decimal.Zero
	if rec.Balance.Valid {
		balance = rec.Balance.Decimal
	}
	return crm.FinancialAccount{
		ID:            rec.ID,
		Name:          str(rec.Name),
		AccountType:   str(rec.AccountType),
		TaxStatus:     str(rec.TaxStatus),
		Balance:       balance,
		HouseholdID:   nonEmpty(rec.HouseholdID),
		HouseholdName: refName(rec.Household),
		OwnerName:     refName(rec.PrimaryOwner),
		Status:        str(rec.Status),
		OpenDate:      parseDate(rec.OpenDate),
	}
}

// decodeRecords unmarshals query rows into T and maps them to canonical records.
// With keepRaw set each record carries its provider payload.
func decodeRecords[T any, R any](rows []json.RawMessage, mapFn func(T) R, setRaw func(*R, json.RawMessage), keepRaw bool) ([]R, error) {
	out := make([]R, 0, len(rows))
	for i, row := range rows {
		var rec T
		if err := json.Unmarshal(row, &rec); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidResponse, i, err)
		}
		r := mapFn(rec)
		if keepRaw {
			setRaw(&r, row)
		}
		out = append(out, r)
	}
	return out, nil
}

func setContactRaw(c *crm.Contact, raw json.RawMessage)          { c.Raw = raw }
func setHouseholdRaw(h *crm.Household, raw json.RawMessage)      { h.Raw = raw }
func setTaskRaw(t *crm.Task, raw json.RawMessage)                { t.Raw = raw }
func setAccountRaw(a *crm.FinancialAccount, raw json.RawMessage) { a.Raw = raw }

// ---------------------------------------------------------------------------
// Canonical input to provider fields
// ---------------------------------------------------------------------------

func contactFieldsFor(in crm.ContactInput) map[string]any {
	fields := map[string]any{
		"LastName":  in.LastName,
		"AccountId": in.HouseholdID,
	}
	if in.FirstName != "" {
		fields["FirstName"] = in.FirstName
	}
	if in.Email != "" {
		fields["Email"] = in.Email
	}
	if in.Phone != "" {
		fields["Phone"] = in.Phone
	}
	return fields
}

// householdFieldsFor maps a household input to Account fields. The advisor
// name is only written when cfg names a custom field for it.
func householdFieldsFor(in crm.HouseholdInput, cfg *Config) map[string]any {
	fields := map[string]any{
		"Name": in.Name,
		"Type": householdAccountType,
	}
	if in.Description != "" {
		fields["Description"] = in.Description
	}
	if cfg.HouseholdRecordTypeID != "" {
		fields["RecordTypeId"] = cfg.HouseholdRecordTypeID
	}
	if in.AdvisorName != "" && cfg.AdvisorNameField != "" {
		fields[cfg.AdvisorNameField] = in.AdvisorName
	}
	return fields
}

func householdUpdateFields(u crm.HouseholdUpdate) map[string]any {
	fields := make(map[string]any, 2)
	if u.Name != nil {
		fields["Name"] = *u.Name
	}
	if u.Description != nil {
		fields["Description"] = *u.Description
	}
	return fields
}

func taskFieldsFor(in crm.TaskInput) map[string]any {
	in = in.WithDefaults()
	fields := map[string]any{
		"Subject":  in.Subject,
		"Status":   in.Status,
		"Priority": in.Priority,
		"WhatId":   in.HouseholdID,
	}
	if in.Description != "" {
		fields["Description"] = in.Description
	}
	if in.DueDate != nil {
		fields["ActivityDate"] = formatDate(in.DueDate)
	}
	if in.ContactID != nil && *in.ContactID != "" {
		fields["WhoId"] = *in.ContactID
	}
	return fields
}

func financialAccountFieldsFor(in crm.FinancialAccountInput) map[string]any {
	fields := map[string]any{
		"Name":                             in.Name,
		"FinServ__FinancialAccountType__c": in.AccountType,
		"FinServ__Balance__c":              json.Number(in.Balance.String()),
		"FinServ__Household__c":            in.HouseholdID,
	}
	if in.TaxStatus != "" {
		fields["FinServ__TaxStatus__c"] = in.TaxStatus
	}
	if in.OwnerContactID != nil && *in.OwnerContactID != "" {
		fields["FinServ__PrimaryOwner__c"] = *in.OwnerContactID
	}
	if in.Status != "" {
		fields["FinServ__Status__c"] = in.Status
	}
	if in.OpenDate != nil {
		fields["FinServ__OpenDate__c"] = formatDate(in.OpenDate)
	}
	return fields
}

func relationshipFieldsFor(contactID, relatedContactID, role string) map[string]any {
	return map[string]any{
		"FinServ__Contact__c":        contactID,
		"FinServ__RelatedContact__c": relatedContactID,
		"FinServ__Role__c":           role,
		"FinServ__Active__c":         true,
	}
}
