package main

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	domain "github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/cache"
	"github.com/advisorhub/backend/internal/infrastructure/config"
	infracrm "github.com/advisorhub/backend/internal/infrastructure/crm"
	"github.com/advisorhub/backend/internal/infrastructure/crm/local"
	"github.com/advisorhub/backend/internal/infrastructure/crm/salesforce"
	"github.com/advisorhub/backend/internal/infrastructure/custodian"
	"github.com/advisorhub/backend/internal/infrastructure/persistence"
	"github.com/advisorhub/backend/internal/infrastructure/persistence/tenant"
	"github.com/advisorhub/backend/internal/infrastructure/telemetry"
)

// buildRegistry registers every provider the binary ships with. Only the
// configured one is constructed, so an unconfigured Salesforce app does not
// stop a local deployment from starting.
func buildRegistry(ctx context.Context, cfg *config.Config, db *persistence.Database, metrics *telemetry.CRMMetrics, log *zap.Logger) (*infracrm.Registry, error) {
	opts := []infracrm.Option{
		infracrm.WithLogger(log),
		infracrm.WithProvider(domain.ProviderSalesforce, salesforceProvider(cfg, metrics, log)),
		infracrm.WithProvider(domain.ProviderLocal, localProvider(cfg.CRM.Local, db, metrics, log)),
	}
	if cfg.Custodian.Enabled() {
		feed, err := custodian.NewS3FeedSource(ctx, cfg.Custodian,
			custodian.WithLogger(log),
			custodian.WithMaxFeedBytes(cfg.Custodian.MaxFeedBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure custodian feed: %w", err)
		}
		opts = append(opts, infracrm.WithDataSource(feed))
	}
	return infracrm.NewRegistry(cfg.CRM.Provider, opts...), nil
}

func salesforceConfig(cfg config.SalesforceConfig) *salesforce.Config {
	sf := salesforce.NewConfig(cfg.InstanceURL, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken)
	sf.LoginURL = cfg.LoginURL
	sf.APIVersion = cfg.APIVersion
	sf.TimeoutSeconds = cfg.TimeoutSeconds
	sf.HouseholdRecordTypeID = cfg.HouseholdRecordTypeID
	sf.AdvisorNameField = cfg.AdvisorNameField
	return sf
}

func salesforceProvider(cfg *config.Config, metrics *telemetry.CRMMetrics, log *zap.Logger) infracrm.Provider {
	tokens := sync.OnceValues(func() (*salesforce.TokenSource, error) {
		sf := salesforceConfig(cfg.CRM.Salesforce)
		if err := sf.ValidateOAuth(); err != nil {
			return nil, err
		}
		store, err := cache.NewTokenStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore()
		if err != nil {
			return nil, err
		}
		return salesforce.NewTokenSource(sf, store,
			salesforce.WithTokenTTL(cfg.CRM.TokenTTL),
			salesforce.WithTokenLogger(log),
		)
	})
	return infracrm.Provider{
		New: func() (domain.CRM, error) {
			if _, err := tokens(); err != nil {
				return nil, err
			}
			return salesforce.NewAdapter(salesforceConfig(cfg.CRM.Salesforce),
				salesforce.WithLogger(log),
				salesforce.WithMetrics(metrics),
				salesforce.WithRawPayloads(cfg.CRM.KeepRawPayloads),
			)
		},
		Credentials: func(ctx context.Context, req infracrm.AuthRequest) (domain.Credentials, error) {
			ts, err := tokens()
			if err != nil {
				return nil, err
			}
			return ts.Credentials(ctx, req.TenantID, req.UserID)
		},
	}
}

func localProvider(cfg config.LocalCRMConfig, db *persistence.Database, metrics *telemetry.CRMMetrics, log *zap.Logger) infracrm.Provider {
	return infracrm.Provider{
		New: func() (domain.CRM, error) {
			if err := tenant.RegisterGuard(db.DB); err != nil {
				return nil, err
			}
			return local.NewAdapter(db.DB,
				local.WithLogger(log),
				local.WithMetrics(metrics),
				local.WithRecordBaseURL(cfg.RecordBaseURL),
			), nil
		},
		Credentials: func(_ context.Context, req infracrm.AuthRequest) (domain.Credentials, error) {
			return local.BuildCredentials(req.TenantID)
		},
	}
}
