// Package practice implements advisor workflows on top of the CRM port.
package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// Onboarding steps, reported in OnboardingError
const (
	StepHousehold     = "household"
	StepContacts      = "contacts"
	StepRelationships = "relationships"
	StepAccounts      = "accounts"
	StepTasks         = "tasks"
)

// DefaultTaskDueIn is how far out default onboarding tasks are due
const DefaultTaskDueIn = 7 * 24 * time.Hour

// ErrNoMembers is returned when onboarding has no contacts to create
var ErrNoMembers = fmt.Errorf("%w: at least one household member is required", crm.ErrInvalidInput)

var defaultChecklist = []OnboardingTask{
	{Subject: "Collect identity documents", Priority: crm.TaskPriorityHigh},
	{Subject: "Complete risk profile questionnaire", Priority: crm.TaskPriorityNormal},
	{Subject: "Schedule discovery meeting", Priority: crm.TaskPriorityNormal},
}

// AdapterResolver yields the active CRM adapter and the optional
// supplementary data source
type AdapterResolver interface {
	Adapter() (crm.CRM, error)
	DataSource() (crm.DataSource, bool)
}

// OnboardingError reports the step that failed and what was created before it
type OnboardingError struct {
	Step    string
	Partial *OnboardingResult
	Err     error
}

func (e *OnboardingError) Error() string {
	return fmt.Sprintf("onboarding failed at %s: %v", e.Step, e.Err)
}

func (e *OnboardingError) Unwrap() error { return e.Err }

// Service runs practice workflows
type Service struct {
	resolver AdapterResolver
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service
func NewService(resolver AdapterResolver, opts ...Option) *Service {
	s := &Service{
		resolver: resolver,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Onboarding
// ---------------------------------------------------------------------------

// OnboardHousehold creates a client household step by step: the household
// (reused when one with the same name exists), its contacts, relationships
// to the primary contact, financial accounts and the onboarding checklist.
// Optional steps are skipped when the provider lacks the capability.
func (s *Service) OnboardHousehold(ctx context.Context, cc crm.CallContext, req OnboardingRequest) (*OnboardingResult, error) {
	if err := req.Household.Validate(); err != nil {
		return nil, err
	}
	if len(req.Members) == 0 {
		return nil, ErrNoMembers
	}

	adapter, err := s.resolver.Adapter()
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, "practice", "OnboardHousehold",
		telemetry.WithAttribute(telemetry.SpanAttrProvider, adapter.ProviderID().String()),
		telemetry.WithAttribute(telemetry.SpanAttrBatchSize, len(req.Members)),
	)
	defer span.End()

	log := logger.WithLogger(ctx, s.logger).With(
		zap.String("provider", adapter.ProviderID().String()),
		zap.String("household", req.Household.Name),
	)
	res := newOnboardingResult()
	fail := func(step string, err error) (*OnboardingResult, error) {
		telemetry.RecordError(span, err)
		telemetry.SetAttribute(span, "onboarding.step", step)
		log.Warn("onboarding step failed", zap.String("step", step), zap.Error(err))
		return nil, &OnboardingError{Step: step, Partial: res, Err: err}
	}

	existing, err := adapter.FindHouseholdByName(ctx, cc, req.Household.Name)
	if err != nil {
		return fail(StepHousehold, err)
	}
	if existing != nil {
		res.Household = *existing
		res.ExistingHousehold = true
	} else {
		created, err := adapter.CreateHousehold(ctx, cc, req.Household)
		if err != nil {
			return fail(StepHousehold, err)
		}
		res.Household = *created
	}
	householdID := res.Household.ID

	contacts := make([]crm.ContactInput, len(req.Members))
	for i, m := range req.Members {
		contacts[i] = crm.ContactInput{
			FirstName:   m.FirstName,
			LastName:    m.LastName,
			Email:       m.Email,
			Phone:       m.Phone,
			HouseholdID: householdID,
		}
	}
	batch, err := adapter.CreateContacts(ctx, cc, contacts)
	if err != nil {
		return fail(StepContacts, err)
	}
	res.Contacts = *batch

	// Batch records are positional only when every input succeeded
	var primaryID string
	positional := len(batch.Errors) == 0 && len(batch.Records) == len(req.Members)
	if positional {
		primaryID = batch.Records[0].ID
	} else if len(batch.Errors) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d of %d contacts failed", len(batch.Errors), len(req.Members)))
	}

	optional, hasOptional := crm.Optional(adapter)
	caps := adapter.Capabilities()

	if hasOptional && caps.ContactRelationships && wantsRelationships(req.Members) {
		if !positional {
			res.Warnings = append(res.Warnings, "relationships skipped because some contacts were not created")
		} else {
			res.RelationshipsAvailable = true
			for i := 1; i < len(req.Members); i++ {
				role := req.Members[i].Role
				if role == "" {
					continue
				}
				ref, err := optional.CreateContactRelationship(ctx, cc, primaryID, batch.Records[i].ID, role)
				if err != nil {
					return fail(StepRelationships, err)
				}
				if ref == nil {
					res.RelationshipsAvailable = false
					res.Warnings = append(res.Warnings, "contact relationships are not enabled for this CRM")
					break
				}
				res.Relationships = append(res.Relationships, *ref)
			}
		}
	}

	if len(req.Accounts) > 0 {
		if !hasOptional || !caps.FinancialAccounts {
			res.Warnings = append(res.Warnings, "financial accounts are not supported by this CRM")
		} else {
			inputs := make([]crm.FinancialAccountInput, len(req.Accounts))
			for i, a := range req.Accounts {
				inputs[i] = crm.FinancialAccountInput{
					Name:           a.Name,
					AccountType:    a.AccountType,
					TaxStatus:      a.TaxStatus,
					Balance:        a.Balance,
					HouseholdID:    householdID,
					OwnerContactID: crm.StringPtr(primaryID),
					Status:         a.Status,
					OpenDate:       a.OpenDate,
				}
			}
			created, err := optional.CreateFinancialAccounts(ctx, cc, inputs)
			if err != nil {
				return fail(StepAccounts, err)
			}
			res.Accounts = append(res.Accounts, created.Accounts...)
			res.AccountErrors = append(res.AccountErrors, created.Errors...)
			res.FinancialAccountsAvailable = created.FSCAvailable
			if !created.FSCAvailable {
				res.Warnings = append(res.Warnings, "financial accounts are not enabled for this CRM")
			}
		}
	}

	tasks := s.onboardingTasks(req.Tasks, householdID, primaryID)
	taskBatch, err := adapter.CreateTasksBatch(ctx, cc, tasks)
	if err != nil {
		return fail(StepTasks, err)
	}
	res.Tasks = *taskBatch

	log.Info("household onboarded",
		zap.String("household_id", householdID),
		zap.Bool("existing", res.ExistingHousehold),
		zap.Int("contacts", len(res.Contacts.Records)),
		zap.Int("accounts", len(res.Accounts)),
		zap.Int("tasks", len(res.Tasks.Records)),
	)
	return res, nil
}

func wantsRelationships(members []OnboardingMember) bool {
	for _, m := range members[1:] {
		if m.Role != "" {
			return true
		}
	}
	return false
}

func (s *Service) onboardingTasks(requested []OnboardingTask, householdID, primaryID string) []crm.TaskInput {
	if len(requested) == 0 {
		requested = defaultChecklist
	}
	due := s.now().Add(DefaultTaskDueIn).UTC().Truncate(24 * time.Hour)
	out := make([]crm.TaskInput, len(requested))
	for i, t := range requested {
		dueDate := t.DueDate
		if dueDate == nil {
			d := due
			dueDate = &d
		}
		out[i] = crm.TaskInput{
			Subject:     t.Subject,
			Priority:    t.Priority,
			Description: t.Description,
			DueDate:     dueDate,
			HouseholdID: householdID,
			ContactID:   crm.StringPtr(primaryID),
		}.WithDefaults()
	}
	return out
}

// ---------------------------------------------------------------------------
// Dashboard
// ---------------------------------------------------------------------------

// Dashboard combines the task overview with assets under management from the
// CRM and the supplementary data source. A CRM without financial accounts
// degrades to FinancialDataAvailable=false; a financial read that fails is
// reported in FinancialErrors. Task failures fail the call.
func (s *Service) Dashboard(ctx context.Context, cc crm.CallContext, limit, offset int) (*Dashboard, error) {
	adapter, err := s.resolver.Adapter()
	if err != nil {
		return nil, err
	}
	limit, offset = crm.NormalizePage(limit, offset, crm.DefaultPageSize)
	ctx, span := telemetry.StartServiceSpan(ctx, "practice", "Dashboard",
		telemetry.WithAttribute(telemetry.SpanAttrProvider, adapter.ProviderID().String()),
		telemetry.WithAttribute(telemetry.SpanAttrLimit, limit),
		telemetry.WithAttribute(telemetry.SpanAttrOffset, offset),
	)
	defer span.End()
	log := logger.WithLogger(ctx, s.logger).With(zap.String("provider", adapter.ProviderID().String()))

	var (
		overview   *crm.TaskOverview
		crmAccts   *crm.FinancialAccountsResult
		crmErr     error
		feedAccts  *crm.DataSourceResult
		feedErr    error
		dataSource crm.DataSource
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		overview, err = adapter.QueryTasks(gctx, cc, limit, offset)
		return err
	})
	optional, hasFinancials := crm.Optional(adapter)
	hasFinancials = hasFinancials && adapter.Capabilities().FinancialAccounts
	if hasFinancials {
		g.Go(func() error {
			crmAccts, crmErr = optional.QueryFinancialAccounts(gctx, cc, nil)
			if crmErr != nil && isCanceled(crmErr) {
				return crmErr
			}
			return nil
		})
	}
	if ds, ok := s.resolver.DataSource(); ok {
		dataSource = ds
		g.Go(func() error {
			feedAccts, feedErr = ds.QueryFinancialAccounts(gctx, nil)
			if feedErr != nil && isCanceled(feedErr) {
				return feedErr
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	d := &Dashboard{
		Provider:          adapter.ProviderID(),
		Capabilities:      adapter.Capabilities(),
		Tasks:             overview.Tasks,
		Households:        overview.Households,
		TasksHasMore:      overview.TasksHasMore,
		HouseholdsHasMore: overview.HouseholdsHasMore,
		FinancialSources:  []string{},
		FinancialErrors:   []FinancialSourceError{},
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	for _, t := range overview.Tasks {
		if t.IsCompleted() {
			continue
		}
		d.OpenTasks++
		if t.DueDate != nil && t.DueDate.Before(today) {
			d.OverdueTasks++
		}
	}

	// Sources only add accounts; ids from different sources are never compared.
	var accounts []crm.FinancialAccount
	if hasFinancials {
		provider := adapter.ProviderID().String()
		switch {
		case crmErr != nil:
			log.Warn("CRM financial accounts query failed", zap.Error(crmErr))
			d.FinancialErrors = append(d.FinancialErrors, newFinancialSourceError(provider, crmErr))
			d.FinancialDataAvailable = true
		case crmAccts != nil && crmAccts.FSCAvailable:
			d.FinancialSources = append(d.FinancialSources, provider)
			d.FinancialDataAvailable = true
			accounts = append(accounts, crmAccts.Accounts...)
		}
	}
	if dataSource != nil {
		d.FinancialDataAvailable = true
		if feedErr != nil {
			log.Warn("financial data source query failed", zap.String("source", dataSource.ID()), zap.Error(feedErr))
			d.FinancialErrors = append(d.FinancialErrors, newFinancialSourceError(dataSource.ID(), feedErr))
		} else if feedAccts != nil {
			d.FinancialSources = append(d.FinancialSources, dataSource.ID())
			accounts = append(accounts, feedAccts.Accounts...)
		}
	}
	d.AccountCount = len(accounts)
	d.TotalAUM, d.AUMByHousehold = crm.SummarizeAUM(accounts)
	telemetry.SetAttribute(span, telemetry.SpanAttrAvailable, d.FinancialDataAvailable)
	if len(d.FinancialErrors) > 0 {
		telemetry.AddEvent(span, "financial_source_failed", "count", len(d.FinancialErrors))
	}
	return d, nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
