// Package crm selects and constructs the configured CRM provider and resolves
// per-request credentials for it.
package crm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	domain "github.com/advisorhub/backend/internal/domain/crm"
)

// AuthRequest identifies who a CRM call is made for
type AuthRequest struct {
	TenantID string
	UserID   string
}

// Constructor builds a provider adapter
type Constructor func() (domain.CRM, error)

// CredentialsBuilder resolves provider credentials for a request
type CredentialsBuilder func(ctx context.Context, req AuthRequest) (domain.Credentials, error)

// Provider is a registered provider: how to build it and how to authenticate calls to it
type Provider struct {
	New         Constructor
	Credentials CredentialsBuilder
}

// UnsupportedProviderError is returned when the configured provider is not registered
type UnsupportedProviderError struct {
	Value     string
	Supported []domain.ProviderID
}

func (e *UnsupportedProviderError) Error() string {
	names := make([]string, len(e.Supported))
	for i, id := range e.Supported {
		names[i] = id.String()
	}
	return fmt.Sprintf("unsupported CRM provider %q (supported: %s)", e.Value, strings.Join(names, ", "))
}

// Registry holds the provider table and the adapter instance for the
// configured provider. The instance is built once and shared until Reset.
type Registry struct {
	configured string
	providers  map[domain.ProviderID]Provider
	dataSource domain.DataSource
	logger     *zap.Logger

	mu       sync.Mutex
	instance domain.CRM
}

// Option configures a Registry
type Option func(*Registry)

// WithProvider registers a provider under id
func WithProvider(id domain.ProviderID, p Provider) Option {
	return func(r *Registry) {
		r.providers[id] = p
	}
}

// WithDataSource sets the supplementary financial data source
func WithDataSource(ds domain.DataSource) Option {
	return func(r *Registry) {
		r.dataSource = ds
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates a registry for the configured provider name
func NewRegistry(configured string, opts ...Option) *Registry {
	r := &Registry{
		configured: configured,
		providers:  make(map[domain.ProviderID]Provider),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supported lists registered providers in name order
func (r *Registry) Supported() []domain.ProviderID {
	ids := make([]domain.ProviderID, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// resolve finds the registration for the configured provider name
func (r *Registry) resolve() (domain.ProviderID, Provider, error) {
	id := domain.ParseProviderID(r.configured)
	p, ok := r.providers[id]
	if !ok || p.New == nil {
		return "", Provider{}, &UnsupportedProviderError{Value: r.configured, Supported: r.Supported()}
	}
	return id, p, nil
}

// Init builds the adapter eagerly so startup fails on a bad provider setting
func (r *Registry) Init() error {
	_, err := r.Adapter()
	return err
}

// Adapter returns the adapter for the configured provider, building it on first use
func (r *Registry) Adapter() (domain.CRM, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.instance != nil {
		return r.instance, nil
	}
	id, p, err := r.resolve()
	if err != nil {
		return nil, err
	}
	adapter, err := p.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s CRM adapter: %w", id, err)
	}
	r.instance = adapter
	r.logger.Info("CRM provider initialized",
		zap.String("provider", id.String()),
		zap.Bool("optional_capabilities", adapter.Capabilities().HasOptional()),
	)
	return adapter, nil
}

// Reset drops the cached adapter; the next Adapter call builds a new one
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instance = nil
}

// BuildContext resolves credentials for the configured provider and returns
// the call context to pass to adapter operations
func (r *Registry) BuildContext(ctx context.Context, req AuthRequest) (domain.CallContext, error) {
	id, p, err := r.resolve()
	if err != nil {
		return domain.CallContext{}, err
	}
	cc := domain.CallContext{TenantID: req.TenantID, UserID: req.UserID}
	if p.Credentials == nil {
		return cc, nil
	}
	creds, err := p.Credentials(ctx, req)
	if err != nil {
		return domain.CallContext{}, err
	}
	if creds == nil || creds.ProviderID() != id {
		return domain.CallContext{}, &domain.AuthError{Provider: id, Message: "credentials builder returned credentials for another provider"}
	}
	cc.Credentials = creds
	return cc, nil
}

// DataSource returns the supplementary financial data source, if configured
func (r *Registry) DataSource() (domain.DataSource, bool) {
	return r.dataSource, r.dataSource != nil
}
