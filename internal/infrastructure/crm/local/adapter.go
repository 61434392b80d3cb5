// Package local implements the CRM port on the service's own database. It
// backs development setups and practices that do not use an external CRM.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/persistence/tenant"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// detailChildLimit caps the contacts and tasks returned with a household detail
const detailChildLimit = 200

// DefaultRecordBaseURL prefixes record links when no base is configured
const DefaultRecordBaseURL = "/api/v1"

// Credentials scope calls to one tenant's records
type Credentials struct {
	TenantID string
}

// ProviderID tags the credentials as local credentials
func (Credentials) ProviderID() crm.ProviderID {
	return crm.ProviderLocal
}

// BuildCredentials returns credentials for a tenant
func BuildCredentials(tenantID string) (Credentials, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Credentials{}, &crm.AuthError{Provider: crm.ProviderLocal, Message: "tenant id is required"}
	}
	return Credentials{TenantID: tenantID}, nil
}

// Adapter implements the CRM port with GORM
type Adapter struct {
	db      *gorm.DB
	baseURL string
	logger  *zap.Logger
	metrics *telemetry.CRMMetrics
	now     func() time.Time
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// WithMetrics records call metrics
func WithMetrics(m *telemetry.CRMMetrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// WithRecordBaseURL sets the prefix of record links. An empty base keeps
// DefaultRecordBaseURL.
func WithRecordBaseURL(base string) Option {
	return func(a *Adapter) {
		if base != "" {
			a.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithClock replaces the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// NewAdapter creates a local adapter on db
func NewAdapter(db *gorm.DB, opts ...Option) *Adapter {
	a := &Adapter{
		db:      db,
		baseURL: DefaultRecordBaseURL,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	_ crm.CRM                  = (*Adapter)(nil)
	_ crm.OptionalCapabilities = (*Adapter)(nil)
)

// ProviderID returns the provider this adapter handles
func (a *Adapter) ProviderID() crm.ProviderID {
	return crm.ProviderLocal
}

// Capabilities declares the optional features the local store supports
func (a *Adapter) Capabilities() crm.Capabilities {
	return crm.Capabilities{
		FinancialAccounts:    true,
		ContactRelationships: true,
		BatchOperations:      true,
	}
}

func (a *Adapter) begin(ctx context.Context, op string, attrs ...any) (context.Context, func(*error)) {
	ctx, span := telemetry.StartServiceSpan(ctx, "crm.local", op, telemetry.WithSpanKind(trace.SpanKindInternal))
	telemetry.SetAttributes(span, attrs...)
	start := a.now()
	return ctx, func(errp *error) {
		kind := ""
		if err := *errp; err != nil {
			telemetry.RecordError(span, err)
			kind = "unmapped"
			if e, ok := crm.AsError(err); ok {
				kind = string(e.Kind())
			}
		}
		a.metrics.RecordCall(ctx, crm.ProviderLocal.String(), op, kind, a.now().Sub(start))
		span.End()
	}
}

// tenant extracts the tenant scope from the call context
func (a *Adapter) tenant(cc crm.CallContext) (string, error) {
	creds, err := crm.CheckCredentials[Credentials](crm.ProviderLocal, cc)
	if err != nil {
		return "", err
	}
	if creds.TenantID == "" {
		return "", &crm.AuthError{Provider: crm.ProviderLocal, Message: "tenant id is required"}
	}
	return creds.TenantID, nil
}

// scoped returns a session limited to the tenant's rows. Preloaded relations
// are limited the same way.
func (a *Adapter) scoped(ctx context.Context, tenantID string, preloads ...string) *gorm.DB {
	q := a.db.WithContext(ctx).Scopes(tenant.Scope(tenantID))
	for _, relation := range preloads {
		q = q.Preload(relation, tenant.Scope(tenantID))
	}
	return q
}

func (a *Adapter) recordRef(collection string, id uuid.UUID) *crm.RecordRef {
	return &crm.RecordRef{ID: id.String(), URL: a.baseURL + "/" + collection + "/" + id.String()}
}

// householdExists checks that the household belongs to the tenant
func (a *Adapter) householdExists(ctx context.Context, tenantID string, id uuid.UUID) error {
	var count int64
	if err := a.scoped(ctx, tenantID).Model(&HouseholdModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: household %s", errNotFound, id)
	}
	return nil
}

// contactExists checks that the contact belongs to the tenant
func (a *Adapter) contactExists(ctx context.Context, tenantID string, id uuid.UUID) error {
	var count int64
	if err := a.scoped(ctx, tenantID).Model(&ContactModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: contact %s", errNotFound, id)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Contact Operations
// ---------------------------------------------------------------------------

// SearchContacts finds contacts whose name or email contains query
func (a *Adapter) SearchContacts(ctx context.Context, cc crm.CallContext, query string, limit int) (_ []crm.Contact, err error) {
	ctx, done := a.begin(ctx, "SearchContacts", telemetry.SpanAttrLimit, limit)
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	limit, _ = crm.NormalizePage(limit, 0, crm.DefaultContactLimit)

	q := a.scoped(ctx, tenantID, "Household").
		Order("last_name ASC, first_name ASC").
		Limit(crm.FetchSize(limit))
	if term := strings.TrimSpace(query); term != "" {
		pattern := containsPattern(term)
		q = q.Where(`(LOWER(first_name || ' ' || last_name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\')`, pattern, pattern)
	}

	var models []ContactModel
	if err := q.Find(&models).Error; err != nil {
		return nil, queryError(err)
	}
	page, _ := crm.TrimPage(toContacts(models), limit)
	return page, nil
}

func toContacts(models []ContactModel) []crm.Contact {
	out := make([]crm.Contact, len(models))
	for i := range models {
		out[i] = models[i].ToCanonical()
	}
	return out
}

// CreateContacts inserts each contact, reporting one outcome per input
func (a *Adapter) CreateContacts(ctx context.Context, cc crm.CallContext, contacts []crm.ContactInput) (_ *crm.BatchResult, err error) {
	ctx, done := a.begin(ctx, "CreateContacts", telemetry.SpanAttrBatchSize, len(contacts))
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	result := crm.NewBatchResult(len(contacts))
	for i, in := range contacts {
		id, err := a.createContact(ctx, tenantID, in)
		if isContextErr(err) {
			return nil, err
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		result.Records = append(result.Records, *a.recordRef("contacts", id))
	}
	return result, nil
}

func (a *Adapter) createContact(ctx context.Context, tenantID string, in crm.ContactInput) (uuid.UUID, error) {
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	householdID, err := parseID("household", in.HouseholdID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.householdExists(ctx, tenantID, householdID); err != nil {
		return uuid.Nil, err
	}
	now := a.now()
	model := &ContactModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Email:       strings.TrimSpace(in.Email),
		Phone:       strings.TrimSpace(in.Phone),
		HouseholdID: &householdID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// ---------------------------------------------------------------------------
// Household Operations
// ---------------------------------------------------------------------------

// SearchHouseholds pages through households by name
func (a *Adapter) SearchHouseholds(ctx context.Context, cc crm.CallContext, query string, limit, offset int) (_ *crm.HouseholdPage, err error) {
	ctx, done := a.begin(ctx, "SearchHouseholds", telemetry.SpanAttrLimit, limit, telemetry.SpanAttrOffset, offset)
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	limit, offset = crm.NormalizePage(limit, offset, crm.DefaultPageSize)

	q := a.scoped(ctx, tenantID).Order("name ASC").Order("id ASC").Limit(crm.FetchSize(limit)).Offset(offset)
	if term := strings.TrimSpace(query); term != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, containsPattern(term))
	}

	var models []HouseholdModel
	if err := q.Find(&models).Error; err != nil {
		return nil, queryError(err)
	}
	page, hasMore := crm.TrimPage(toHouseholds(models), limit)
	return &crm.HouseholdPage{Households: page, HasMore: hasMore}, nil
}

func toHouseholds(models []HouseholdModel) []crm.Household {
	out := make([]crm.Household, len(models))
	for i := range models {
		out[i] = models[i].ToCanonical()
	}
	return out
}

func toTasks(models []TaskModel) []crm.Task {
	out := make([]crm.Task, len(models))
	for i := range models {
		out[i] = models[i].ToCanonical()
	}
	return out
}

// GetHouseholdDetail reads a household, its contacts and its tasks concurrently
func (a *Adapter) GetHouseholdDetail(ctx context.Context, cc crm.CallContext, id string) (_ *crm.HouseholdDetail, err error) {
	ctx, done := a.begin(ctx, "GetHouseholdDetail", telemetry.SpanAttrHouseholdID, id)
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	detail := &crm.HouseholdDetail{Contacts: []crm.Contact{}, Tasks: []crm.Task{}}
	householdID, err := parseID("household", id)
	if err != nil {
		return detail, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var household HouseholdModel
		err := a.scoped(gctx, tenantID).Where("id = ?", householdID).Take(&household).Error
		switch {
		case err == nil:
			h := household.ToCanonical()
			detail.Household = &h
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return queryError(err)
		}
		return nil
	})
	g.Go(func() error {
		var contacts []ContactModel
		if err := a.scoped(gctx, tenantID, "Household").
			Where("household_id = ?", householdID).
			Order("last_name ASC, first_name ASC").
			Limit(detailChildLimit).
			Find(&contacts).Error; err != nil {
			return queryError(err)
		}
		detail.Contacts = toContacts(contacts)
		return nil
	})
	g.Go(func() error {
		var tasks []TaskModel
		if err := a.scoped(gctx, tenantID, "Household").
			Where("household_id = ?", householdID).
			Order("created_at DESC").
			Limit(detailChildLimit).
			Find(&tasks).Error; err != nil {
			return queryError(err)
		}
		detail.Tasks = toTasks(tasks)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detail, nil
}

// CreateHousehold inserts a household
func (a *Adapter) CreateHousehold(ctx context.Context, cc crm.CallContext, input crm.HouseholdInput) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CreateHousehold")
	defer done(&err)

	if err := input.Validate(); err != nil {
		return nil, err
	}
	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	now := a.now()
	model := &HouseholdModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		NameKey:     nameKey(name),
		Description: input.Description,
		AdvisorName: crm.StringPtr(strings.TrimSpace(input.AdvisorName)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, mutationError(err, objectHousehold)
	}
	return a.recordRef("households", model.ID), nil
}

// UpdateHousehold changes the household's name or description
func (a *Adapter) UpdateHousehold(ctx context.Context, cc crm.CallContext, id string, update crm.HouseholdUpdate) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "UpdateHousehold", telemetry.SpanAttrHouseholdID, id)
	defer done(&err)

	if err := update.Validate(); err != nil {
		return nil, err
	}
	householdID, err := parseID("household", id)
	if err != nil {
		return nil, err
	}
	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{"updated_at": a.now()}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		changes["name"] = name
		changes["name_key"] = nameKey(name)
	}
	if update.Description != nil {
		changes["description"] = *update.Description
	}

	res := a.scoped(ctx, tenantID).Model(&HouseholdModel{}).Where("id = ?", householdID).Updates(changes)
	if res.Error != nil {
		return nil, mutationError(res.Error, objectHousehold)
	}
	if res.RowsAffected == 0 {
		return nil, mutationError(fmt.Errorf("%w: household %s", errNotFound, householdID), objectHousehold)
	}
	return a.recordRef("households", householdID), nil
}

// FindHouseholdByName returns the oldest household whose folded name matches, or nil
func (a *Adapter) FindHouseholdByName(ctx context.Context, cc crm.CallContext, name string) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "FindHouseholdByName")
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	key := nameKey(name)
	if key == "" {
		return nil, nil
	}

	var model HouseholdModel
	err = a.scoped(ctx, tenantID).Where("name_key = ?", key).Order("created_at ASC").Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, queryError(err)
	}
	return a.recordRef("households", model.ID), nil
}

// ---------------------------------------------------------------------------
// Task Operations
// ---------------------------------------------------------------------------

// QueryTasks pages recent tasks and recent households independently
func (a *Adapter) QueryTasks(ctx context.Context, cc crm.CallContext, limit, offset int) (_ *crm.TaskOverview, err error) {
	ctx, done := a.begin(ctx, "QueryTasks", telemetry.SpanAttrLimit, limit, telemetry.SpanAttrOffset, offset)
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	limit, offset = crm.NormalizePage(limit, offset, crm.DefaultPageSize)

	var tasks []TaskModel
	if err := a.scoped(ctx, tenantID, "Household").
		Order("created_at DESC").Order("id ASC").
		Limit(crm.FetchSize(limit)).Offset(offset).
		Find(&tasks).Error; err != nil {
		return nil, queryError(err)
	}
	var households []HouseholdModel
	if err := a.scoped(ctx, tenantID).
		Order("created_at DESC").Order("id ASC").
		Limit(crm.FetchSize(limit)).Offset(offset).
		Find(&households).Error; err != nil {
		return nil, queryError(err)
	}

	overview := &crm.TaskOverview{}
	overview.Tasks, overview.TasksHasMore = crm.TrimPage(toTasks(tasks), limit)
	overview.Households, overview.HouseholdsHasMore = crm.TrimPage(toHouseholds(households), limit)
	return overview, nil
}

// CreateTask inserts one task
func (a *Adapter) CreateTask(ctx context.Context, cc crm.CallContext, input crm.TaskInput) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CreateTask", telemetry.SpanAttrHouseholdID, input.HouseholdID)
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	id, err := a.createTask(ctx, tenantID, input)
	if err != nil {
		if errors.Is(err, crm.ErrInvalidInput) || isContextErr(err) {
			return nil, err
		}
		return nil, mutationError(err, objectTask)
	}
	return a.recordRef("tasks", id), nil
}

func (a *Adapter) createTask(ctx context.Context, tenantID string, in crm.TaskInput) (uuid.UUID, error) {
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	in = in.WithDefaults()
	householdID, err := parseID("household", in.HouseholdID)
	if err != nil {
		return uuid.Nil, err
	}
	contactID, err := parseOptionalID("contact", in.ContactID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := a.householdExists(ctx, tenantID, householdID); err != nil {
		return uuid.Nil, err
	}
	if contactID != nil {
		if err := a.contactExists(ctx, tenantID, *contactID); err != nil {
			return uuid.Nil, err
		}
	}
	now := a.now()
	model := &TaskModel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Subject:     strings.TrimSpace(in.Subject),
		Status:      in.Status,
		Priority:    in.Priority,
		Description: in.Description,
		DueDate:     in.DueDate,
		HouseholdID: &householdID,
		ContactID:   contactID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Status == crm.TaskStatusCompleted {
		model.CompletedAt = &now
	}
	if err := a.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// CreateTasksBatch inserts each task, reporting one outcome per input
func (a *Adapter) CreateTasksBatch(ctx context.Context, cc crm.CallContext, tasks []crm.TaskInput) (_ *crm.BatchResult, err error) {
	ctx, done := a.begin(ctx, "CreateTasksBatch", telemetry.SpanAttrBatchSize, len(tasks))
	defer done(&err)

	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	result := crm.NewBatchResult(len(tasks))
	for i, in := range tasks {
		id, err := a.createTask(ctx, tenantID, in)
		if isContextErr(err) {
			return nil, err
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		result.Records = append(result.Records, *a.recordRef("tasks", id))
	}
	if len(result.Errors) > 0 {
		logger.WithLogger(ctx, a.logger).Info("batch create finished with failures",
			zap.String("object", objectTask),
			zap.Int("created", len(result.Records)),
			zap.Int("failed", len(result.Errors)),
		)
	}
	return result, nil
}

// CompleteTask marks the task Completed
func (a *Adapter) CompleteTask(ctx context.Context, cc crm.CallContext, taskID string) (_ *crm.RecordRef, err error) {
	ctx, done := a.begin(ctx, "CompleteTask", telemetry.SpanAttrTaskID, taskID)
	defer done(&err)

	id, err := parseID("task", taskID)
	if err != nil {
		return nil, err
	}
	tenantID, err := a.tenant(cc)
	if err != nil {
		return nil, err
	}
	now := a.now()
	res := a.scoped(ctx, tenantID).Model(&TaskModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       crm.TaskStatusCompleted,
		"completed_at": now,
		"updated_at":   now,
	})
	if res.Error != nil {
		return nil, mutationError(res.Error, objectTask)
	}
	if res.RowsAffected == 0 {
		return nil, mutationError(fmt.Errorf("%w: task %s", errNotFound, id), objectTask)
	}
	return a.recordRef("tasks", id), nil
}
