package salesforce

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Financial Services Cloud Operations
// ---------------------------------------------------------------------------

// featureAbsent records that the org lacks the object behind op
func (a *Adapter) featureAbsent(ctx context.Context, op, object string, err error) {
	a.metrics.RecordFeatureAbsent(ctx, crm.ProviderSalesforce.String(), op)
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "feature_absent", telemetry.SpanAttrObjectType, object)
	logger.WithLogger(ctx, a.logger).Info("optional CRM feature not installed",
		zap.String("operation", op),
		zap.String("object", object),
		zap.Error(err),
	)
}

// unmatched logs a provider error that the feature-absent heuristic did not
// recognize, so new signatures can be reviewed
func (a *Adapter) unmatched(ctx context.Context, op, object string, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return
	}
	a.metrics.RecordUnmatchedError(ctx, crm.ProviderSalesforce.String(), op)
	logger.WithLogger(ctx, a.logger).Warn("optional CRM operation failed with unrecognized provider error",
		zap.String("operation", op),
		zap.String("object", object),
		zap.Int("status", apiErr.StatusCode),
		zap.String("error_code", apiErr.ErrorCode),
		zap.String("message", apiErr.Message),
	)
}

// CreateContactRelationship links two contacts. Returns nil when the org has
// no contact relationship object.
func (a *Adapter) CreateContactRelationship(ctx context.Context, cc crm.CallContext, contactID, relatedContactID, role string) (_ *crm.RecordRef, err error) {
	const op = "CreateContactRelationship"
	ctx, done := a.begin(ctx, op)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	id, err := a.client.create(ctx, creds, objectContactRelationship, relationshipFieldsFor(contactID, relatedContactID, role))
	if err != nil {
		if isFeatureAbsent(err) {
			a.featureAbsent(ctx, op, objectContactRelationship, err)
			return nil, nil
		}
		a.unmatched(ctx, op, objectContactRelationship, err)
		return nil, mapMutationError(err, objectContactRelationship)
	}
	return recordRef(creds, objectContactRelationship, id), nil
}

// CreateFinancialAccounts creates accounts one at a time. The first
// feature-absent response stops the batch and marks the feature unavailable;
// other per-item failures are recorded and the batch continues.
func (a *Adapter) CreateFinancialAccounts(ctx context.Context, cc crm.CallContext, accounts []crm.FinancialAccountInput) (_ *crm.FinancialAccountsCreateResult, err error) {
	const op = "CreateFinancialAccounts"
	ctx, done := a.begin(ctx, op, telemetry.SpanAttrBatchSize, len(accounts))
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}

	result := &crm.FinancialAccountsCreateResult{
		Accounts:     make([]crm.RecordRef, 0, len(accounts)),
		Errors:       make([]string, 0),
		FSCAvailable: true,
	}
	for i, in := range accounts {
		if err := in.Validate(); err != nil {
			result.Errors = append(result.Errors, batchErrorMessage(i, err))
			continue
		}
		id, err := a.client.create(ctx, creds, objectFinancialAccount, financialAccountFieldsFor(in))
		if err == nil {
			result.Accounts = append(result.Accounts, *recordRef(creds, objectFinancialAccount, id))
			continue
		}
		if isFeatureAbsent(err) {
			a.featureAbsent(ctx, op, objectFinancialAccount, err)
			result.FSCAvailable = false
			break
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		mapped := mapMutationError(err, objectFinancialAccount)
		if crm.IsKind(mapped, crm.KindAuth) {
			return nil, mapped
		}
		a.unmatched(ctx, op, objectFinancialAccount, err)
		result.Errors = append(result.Errors, batchErrorMessage(i, err))
	}
	telemetry.SetAttribute(telemetry.SpanFromContext(ctx), telemetry.SpanAttrAvailable, result.FSCAvailable)
	return result, nil
}

// QueryFinancialAccounts reads financial accounts for the households, or all
// when none are given, and rolls up AUM
func (a *Adapter) QueryFinancialAccounts(ctx context.Context, cc crm.CallContext, householdIDs []string) (_ *crm.FinancialAccountsResult, err error) {
	const op = "QueryFinancialAccounts"
	ctx, done := a.begin(ctx, op)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}

	q := selectFrom(objectFinancialAccount, financialAccountFields).OrderBy("Name ASC")
	if len(householdIDs) > 0 {
		ids := make([]string, 0, len(householdIDs))
		for _, id := range householdIDs {
			if isRecordID(id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return crm.NewFinancialAccountsResult(nil), nil
		}
		q.Where(in("FinServ__Household__c", ids))
	}

	rows, err := a.client.query(ctx, creds, q.String())
	if err != nil {
		if isFeatureAbsent(err) {
			a.featureAbsent(ctx, op, objectFinancialAccount, err)
			return crm.UnavailableFinancialAccounts(), nil
		}
		a.unmatched(ctx, op, objectFinancialAccount, err)
		return nil, mapQueryError(err)
	}
	accounts, err := decodeRecords(rows, toFinancialAccount, setAccountRaw, a.keepRaw)
	if err != nil {
		return nil, mapQueryError(err)
	}
	return crm.NewFinancialAccountsResult(accounts), nil
}
