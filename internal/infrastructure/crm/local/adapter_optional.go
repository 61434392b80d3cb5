package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Financial Account and Relationship Operations
// ---------------------------------------------------------------------------

// CreateContactRelationship links two contacts of the tenant
func (a *Adapter) CreateContactRelationship(ctx context.Context, cc crm.CallContext, contactID, relatedContactID, role string) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CreateContactRelationship")
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	from, err := parseID("contact", contactID)
	if err != nil {
		return nil, err
	}
	to, err := parseID("related contact", relatedContactID)
	if err != nil {
		return nil, err
	}
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, fmt.Errorf("%w: relationship role is required", crm.ErrInvalidInput)
	}

	var count int64
	if err := a.scoped(ctx, tenantID).Model(&ContactModel{}).Where("id IN ?", []uuid.UUID{from, to}).Count(&count).Error; err != nil {
		return nil, queryError(err)
	}
	if (from == to && count != 1) || (from != to && count != 2) {
		return nil, mutationError(fmt.Errorf("%w: contacts %s and %s", errNotFound, from, to), objectContactRelationship)
	}

	model := &ContactRelationshipModel{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ContactID:        from,
		RelatedContactID: to,
		Role:             role,
		Active:           true,
		CreatedAt:        a.now(),
	}
	if err := a.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, mutationError(err, objectContactRelationship)
	}
	return a.recordRef("contact-relationships", model.ID), nil
}

// CreateFinancialAccounts inserts each account. The feature is always
// available locally, so failures are recorded per item.
func (a *Adapter) CreateFinancialAccounts(ctx context.Context, cc crm.CallContext, accounts []crm.FinancialAccountInput) (_ *crm.FinancialAccountsCreateResult, err error) {
	ctx, done := a.begin(ctx, "CreateFinancialAccounts", telemetry.SpanAttrBatchSize, len(accounts))
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	result := &crm.FinancialAccountsCreateResult{
		Accounts:     make([]crm.RecordRef, 0, len(accounts)),
		Errors:       make([]string, 0),
		FSCAvailable: true,
	}
	for i, in := range accounts {
		id, err := a.createFinancialAccount(ctx, tenantID, in)
		if isContextErr(err) {
			return nil, err
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		result.Accounts = append(result.Accounts, *a.recordRef("financial-accounts", id))
	}
	return result, nil
}

func (a *Adapter) createFinancialAccount(ctx context.Context, tenantID string, in crm.FinancialAccountInput) (uuid.UUID, error) {
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	householdID, err := parseID("household", in.HouseholdID)
	if err != nil {
		return uuid.Nil, err
	}
	ownerID, err := parseOptionalID("owner contact", in.OwnerContactID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.householdExists(ctx, tenantID, householdID); err != nil {
		return uuid.Nil, err
	}
	if ownerID != nil {
		if err := a.contactExists(ctx, tenantID, *ownerID); err != nil {
			return uuid.Nil, err
		}
	}
	now := a.now()
	model := &FinancialAccountModel{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Name:           strings.TrimSpace(in.Name),
		AccountType:    in.AccountType,
		TaxStatus:      in.TaxStatus,
		Balance:        in.Balance,
		HouseholdID:    &householdID,
		OwnerContactID: ownerID,
		Status:         in.Status,
		OpenDate:       in.OpenDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// QueryFinancialAccounts reads accounts for the households, or all when none
// are given, and rolls up AUM
func (a *Adapter) QueryFinancialAccounts(ctx context.Context, cc crm.CallContext, householdIDs []string) (_ *crm.FinancialAccountsResult, err error) {
	ctx, done := a.begin(ctx, "QueryFinancialAccounts")
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}

	q := a.scoped(ctx, tenantID, "Household", "Owner").Order("name ASC")
	if len(householdIDs) > 0 {
		ids := make([]uuid.UUID, 0, len(householdIDs))
		for _, raw := range householdIDs {
			if id, err := uuid.Parse(raw); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return crm.NewFinancialAccountsResult(nil), nil
		}
		q = q.Where("household_id IN ?", ids)
	}

	var models []FinancialAccountModel
	if err := q.Find(&models).Error; err != nil {
		return nil, queryError(err)
	}
	accounts := make([]crm.FinancialAccount, len(models))
	for i := range models {
		accounts[i] = models[i].ToCanonical()
	}
	return crm.NewFinancialAccountsResult(accounts), nil
}
