package salesforce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// detailChildLimit caps the contacts and tasks returned with a household detail
const detailChildLimit = 200

// Adapter implements the CRM port against the Salesforce REST API. Households
// are Account records of type Household; financial accounts and contact
// relationships use the Financial Services Cloud objects when installed.
type Adapter struct {
	config  *Config
	client  *restClient
	logger  *zap.Logger
	metrics *telemetry.CRMMetrics
	keepRaw bool
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithHTTPClient replaces the HTTP client used for REST calls
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.client.httpClient = c
	}
}

// WithMetrics records call metrics
func WithMetrics(m *telemetry.CRMMetrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithRawPayloads attaches the provider record to each canonical record
func WithRawPayloads(keep bool) Option {
	return func(a *Adapter) {
		a.keepRaw = keep
	}
}

// NewAdapter creates a Salesforce adapter
func NewAdapter(config *Config, opts ...Option) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		config: config,
		client: &restClient{
			httpClient: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
			apiVersion: config.APIVersion,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

var (
	_ crm.CRM                  = (*Adapter)(nil)
	_ crm.OptionalCapabilities = (*Adapter)(nil)
)

// ProviderID returns the provider this adapter handles
func (a *Adapter) ProviderID() crm.ProviderID {
	return crm.ProviderSalesforce
}

// Capabilities declares the optional features Salesforce supports
func (a *Adapter) Capabilities() crm.Capabilities {
	return crm.Capabilities{
		FinancialAccounts:    true,
		ContactRelationships: true,
		BatchOperations:      true,
		Workflows:            true,
		AuditLog:             true,
	}
}

// begin starts the span for op and returns a function that closes it and
// records the call outcome
func (a *Adapter) begin(ctx context.Context, op string, attrs ...any) (context.Context, func(*error)) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crm.salesforce", op, telemetry.WithSpanKind(trace.SpanKindClient))
	telemetry.SetAttributes(span, attrs...)
	start := time.Now()
	return ctx, func(errp *error) {
		kind := ""
		if err := *errp; err != nil {
			telemetry.RecordError(span, err)
			kind = "unmapped"
			if e, ok := crm.AsError(err); ok {
				kind = string(e.Kind())
			}
		}
		a.metrics.RecordCall(ctx, crm.ProviderSalesforce.String(), op, kind, time.Since(start))
		span.End()
	}
}

// credentials extracts Salesforce credentials from the call context
func (a *Adapter) credentials(cc crm.CallContext) (Credentials, error) {
	creds, err := crm.CheckCredentials[Credentials](crm.ProviderSalesforce, cc)
	if err != nil {
		return Credentials{}, err
	}
	if creds.AccessToken == "" {
		return Credentials{}, &crm.AuthError{Provider: crm.ProviderSalesforce, Message: "empty access token"}
	}
	if creds.InstanceURL == "" {
		creds.InstanceURL = a.config.InstanceURL
	}
	if creds.InstanceURL == "" {
		return Credentials{}, &crm.AuthError{Provider: crm.ProviderSalesforce, Message: "no instance url for session"}
	}
	return creds, nil
}

// recordRef builds the Lightning URL of a record
func recordRef(creds Credentials, object, id string) *crm.RecordRef {
	return &crm.RecordRef{
		ID:  id,
		URL: creds.InstanceURL + "/lightning/r/" + object + "/" + id + "/view",
	}
}

// ---------------------------------------------------------------------------
// Contact Operations
// ---------------------------------------------------------------------------

// SearchContacts finds contacts by name or email
func (a *Adapter) SearchContacts(ctx context.Context, cc crm.CallContext, query string, limit int) (_ []crm.Contact, err error) {
	ctx, done := a.begin(ctx, "SearchContacts", telemetry.SpanAttrLimit, limit)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	limit, _ = crm.NormalizePage(limit, 0, crm.DefaultContactLimit)

	q := selectFrom(objectContact, contactFields).
		OrderBy("LastName ASC, FirstName ASC").
		Limit(crm.FetchSize(limit))
	if term := strings.TrimSpace(query); term != "" {
		q.Where(anyOf(contains("Name", term), contains("Email", term)))
	}

	rows, err := a.client.query(ctx, creds, q.String())
	if err != nil {
		return nil, mapQueryError(err)
	}
	contacts, err := decodeRecords(rows, toContact, setContactRaw, a.keepRaw)
	if err != nil {
		return nil, mapQueryError(err)
	}
	page, _ := crm.TrimPage(contacts, limit)
	return page, nil
}

// CreateContacts creates contacts through the sObject collections API
func (a *Adapter) CreateContacts(ctx context.Context, cc crm.CallContext, contacts []crm.ContactInput) (_ *crm.BatchResult, err error) {
	ctx, done := a.begin(ctx, "CreateContacts", telemetry.SpanAttrBatchSize, len(contacts))
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	return createBatch(ctx, a, creds, objectContact, contacts, crm.ContactInput.Validate, contactFieldsFor)
}

// createBatch validates inputs locally, sends the valid ones through the
// collections API and reports one outcome per input. A failed chunk becomes one
// error per record it and later chunks carried; only auth and context errors
// abort the batch.
func createBatch[T any](ctx context.Context, a *Adapter, creds Credentials, object string, inputs []T, validate func(T) error, fields func(T) map[string]any) (*crm.BatchResult, error) {
	result := crm.NewBatchResult(len(inputs))
	records := make([]map[string]any, 0, len(inputs))
	positions := make([]int, 0, len(inputs))
	for i, in := range inputs {
		if err := validate(in); err != nil {
			result.Errors = append(result.Errors, batchErrorMessage(i, err))
			continue
		}
		records = append(records, fields(in))
		positions = append(positions, i)
	}
	if len(records) == 0 {
		return result, nil
	}

	saved, err := a.client.createCollection(ctx, creds, object, records)
	var chunkErr error
	if err != nil {
		chunkErr = mapMutationError(err, object)
		if crm.IsKind(chunkErr, crm.KindAuth) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, chunkErr
		}
	}
	for j, r := range saved {
		if r.IsSuccess() {
			result.Records = append(result.Records, *recordRef(creds, object, r.ID))
			continue
		}
		result.Errors = append(result.Errors, batchErrorMessage(positions[j], saveResultError(r)))
	}
	if chunkErr != nil {
		logger.WithLogger(ctx, a.logger).Warn("batch create chunk failed",
			zap.String("object", object),
			zap.Int("unsaved", len(records)-len(saved)),
			zap.Error(err),
		)
		for _, pos := range positions[len(saved):] {
			result.Errors = append(result.Errors, batchErrorMessage(pos, chunkErr))
		}
	}
	if len(result.Errors) > 0 {
		logger.WithLogger(ctx, a.logger).Info("batch create finished with failures",
			zap.String("object", object),
			zap.Int("created", len(result.Records)),
			zap.Int("failed", len(result.Errors)),
		)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Household Operations
// ---------------------------------------------------------------------------

func householdQuery() *soqlQuery {
	return selectFrom(objectAccount, householdFields).Where(eq("Type", householdAccountType))
}

// SearchHouseholds pages through household accounts by name
func (a *Adapter) SearchHouseholds(ctx context.Context, cc crm.CallContext, query string, limit, offset int) (_ *crm.HouseholdPage, err error) {
	ctx, done := a.begin(ctx, "SearchHouseholds", telemetry.SpanAttrLimit, limit, telemetry.SpanAttrOffset, offset)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	limit, offset = crm.NormalizePage(limit, offset, crm.DefaultPageSize)

	q := householdQuery().OrderBy("Name ASC").Limit(crm.FetchSize(limit)).Offset(offset)
	if term := strings.TrimSpace(query); term != "" {
		q.Where(contains("Name", term))
	}

	households, err := a.queryHouseholds(ctx, creds, q)
	if err != nil {
		return nil, err
	}
	page, hasMore := crm.TrimPage(households, limit)
	telemetry.SetAttribute(trace.SpanFromContext(ctx), telemetry.SpanAttrHasMore, hasMore)
	return &crm.HouseholdPage{Households: page, HasMore: hasMore}, nil
}

func (a *Adapter) queryHouseholds(ctx context.Context, creds Credentials, q *soqlQuery) ([]crm.Household, error) {
	rows, err := a.client.query(ctx, creds, q.String())
	if err != nil {
		return nil, mapQueryError(err)
	}
	households, err := decodeRecords(rows, toHousehold, setHouseholdRaw, a.keepRaw)
	if err != nil {
		return nil, mapQueryError(err)
	}
	return households, nil
}

func (a *Adapter) queryTasks(ctx context.Context, creds Credentials, q *soqlQuery) ([]crm.Task, error) {
	rows, err := a.client.query(ctx, creds, q.String())
	if err != nil {
		return nil, mapQueryError(err)
	}
	tasks, err := decodeRecords(rows, toTask, setTaskRaw, a.keepRaw)
	if err != nil {
		return nil, mapQueryError(err)
	}
	return tasks, nil
}

// GetHouseholdDetail reads the household, its contacts and its tasks concurrently
func (a *Adapter) GetHouseholdDetail(ctx context.Context, cc crm.CallContext, id string) (_ *crm.HouseholdDetail, err error) {
	ctx, done := a.begin(ctx, "GetHouseholdDetail", telemetry.SpanAttrHouseholdID, id)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}

	detail := &crm.HouseholdDetail{Contacts: []crm.Contact{}, Tasks: []crm.Task{}}
	if !isRecordID(id) {
		return detail, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		households, err := a.queryHouseholds(gctx, creds, householdQuery().Where(eq("Id", id)).Limit(1))
		if err != nil {
			return err
		}
		if len(households) > 0 {
			detail.Household = &households[0]
		}
		return nil
	})
	g.Go(func() error {
		q := selectFrom(objectContact, contactFields).
			Where(eq("AccountId", id)).
			OrderBy("LastName ASC, FirstName ASC").
			Limit(detailChildLimit)
		rows, err := a.client.query(gctx, creds, q.String())
		if err != nil {
			return mapQueryError(err)
		}
		contacts, err := decodeRecords(rows, toContact, setContactRaw, a.keepRaw)
		if err != nil {
			return mapQueryError(err)
		}
		detail.Contacts = contacts
		return nil
	})
	g.Go(func() error {
		tasks, err := a.queryTasks(gctx, creds, selectFrom(objectTask, taskFields).
			Where(eq("WhatId", id)).
			OrderBy("CreatedDate DESC").
			Limit(detailChildLimit))
		if err != nil {
			return err
		}
		detail.Tasks = tasks
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// CreateHousehold creates a household account
func (a *Adapter) CreateHousehold(ctx context.Context, cc crm.CallContext, input crm.HouseholdInput) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CreateHousehold")
	defer done(&err)

	if err := input.Validate(); err != nil {
		return nil, err
	}
	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	if input.AdvisorName != "" && a.config.AdvisorNameField == "" {
		logger.WithLogger(ctx, a.logger).Debug("advisor name not written, advisor is the account owner")
	}
	id, err := a.client.create(ctx, creds, objectAccount, householdFieldsFor(input, a.config))
	if err != nil {
		return nil, mapMutationError(err, objectAccount)
	}
	return recordRef(creds, objectAccount, id), nil
}

// UpdateHousehold patches the household's name or description
func (a *Adapter) UpdateHousehold(ctx context.Context, cc crm.CallContext, id string, update crm.HouseholdUpdate) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "UpdateHousehold", telemetry.SpanAttrHouseholdID, id)
	defer done(&err)

	if err := update.Validate(); err != nil {
		return nil, err
	}
	if !isRecordID(id) {
		return nil, fmt.Errorf("%w: malformed household id %q", crm.ErrInvalidInput, id)
	}
	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	if err := a.client.update(ctx, creds, objectAccount, id, householdUpdateFields(update)); err != nil {
		return nil, mapMutationError(err, objectAccount)
	}
	return recordRef(creds, objectAccount, id), nil
}

// FindHouseholdByName returns the household with exactly this name, or nil
func (a *Adapter) FindHouseholdByName(ctx context.Context, cc crm.CallContext, name string) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "FindHouseholdByName")
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	households, err := a.queryHouseholds(ctx, creds, householdQuery().Where(eq("Name", name)).OrderBy("CreatedDate ASC").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(households) == 0 {
		return nil, nil
	}
	return recordRef(creds, objectAccount, households[0].ID), nil
}

// ---------------------------------------------------------------------------
// Task Operations
// ---------------------------------------------------------------------------

// QueryTasks reads recent tasks and recent households concurrently, paging each
func (a *Adapter) QueryTasks(ctx context.Context, cc crm.CallContext, limit, offset int) (_ *crm.TaskOverview, err error) {
	ctx, done := a.begin(ctx, "QueryTasks", telemetry.SpanAttrLimit, limit, telemetry.SpanAttrOffset, offset)
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	limit, offset = crm.NormalizePage(limit, offset, crm.DefaultPageSize)

	var tasks []crm.Task
	var households []crm.Household
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = a.queryTasks(gctx, creds, selectFrom(objectTask, taskFields).
			OrderBy("CreatedDate DESC").
			Limit(crm.FetchSize(limit)).
			Offset(offset))
		return err
	})
	g.Go(func() error {
		var err error
		households, err = a.queryHouseholds(gctx, creds, householdQuery().
			OrderBy("CreatedDate DESC").
			Limit(crm.FetchSize(limit)).
			Offset(offset))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overview := &crm.TaskOverview{}
	overview.Tasks, overview.TasksHasMore = crm.TrimPage(tasks, limit)
	overview.Households, overview.HouseholdsHasMore = crm.TrimPage(households, limit)
	return overview, nil
}

// CreateTask creates one task
func (a *Adapter) CreateTask(ctx context.Context, cc crm.CallContext, input crm.TaskInput) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CreateTask", telemetry.SpanAttrHouseholdID, input.HouseholdID)
	defer done(&err)

	if err := input.Validate(); err != nil {
		return nil, err
	}
	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	id, err := a.client.create(ctx, creds, objectTask, taskFieldsFor(input))
	if err != nil {
		return nil, mapMutationError(err, objectTask)
	}
	return recordRef(creds, objectTask, id), nil
}

// CreateTasksBatch creates tasks through the sObject collections API
func (a *Adapter) CreateTasksBatch(ctx context.Context, cc crm.CallContext, tasks []crm.TaskInput) (_ *crm.BatchResult, err error) {
	ctx, done := a.begin(ctx, "CreateTasksBatch", telemetry.SpanAttrBatchSize, len(tasks))
	defer done(&err)

	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	return createBatch(ctx, a, creds, objectTask, tasks, crm.TaskInput.Validate, taskFieldsFor)
}

// CompleteTask sets the task status to Completed
func (a *Adapter) CompleteTask(ctx context.Context, cc crm.CallContext, taskID string) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CompleteTask", telemetry.SpanAttrTaskID, taskID)
	defer done(&err)

	if !isRecordID(taskID) {
		return nil, fmt.Errorf("%w: malformed task id %q", crm.ErrInvalidInput, taskID)
	}
	creds, err := a.credentials(cc)
	if err != nil {
		return nil, err
	}
	if err := a.client.update(ctx, creds, objectTask, taskID, map[string]any{"Status": crm.TaskStatusCompleted}); err != nil {
		return nil, mapMutationError(err, objectTask)
	}
	return recordRef(creds, objectTask, taskID), nil
}
