//go:build integration

package local_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/crm/local"
	"github.com/advisorhub/backend/internal/infrastructure/migration"
	"github.com/advisorhub/backend/internal/infrastructure/persistence/tenant"
)

// newPostgres starts a PostgreSQL container, applies the SQL migrations and
// returns a guarded GORM handle.
func newPostgres(t *testing.T) (*gorm.DB, *migration.Migrator) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("advisor_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, tenant.RegisterGuard(db))
	return db, m
}

func TestPostgres_MigratedSchemaServesAdapter(t *testing.T) {
	db, m := newPostgres(t)
	adapter := local.NewAdapter(db)
	ctx := context.Background()
	tenantA := crm.CallContext{Credentials: local.Credentials{TenantID: "tenant-a"}, TenantID: "tenant-a"}
	tenantB := crm.CallContext{Credentials: local.Credentials{TenantID: "tenant-b"}, TenantID: "tenant-b"}

	ref, err := adapter.CreateHousehold(ctx, tenantA, crm.HouseholdInput{Name: "Okafor Family", AdvisorName: "R. Lindqvist"})
	require.NoError(t, err)

	page, err := adapter.SearchHouseholds(ctx, tenantA, "okafor", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Households, 1)
	assert.Equal(t, ref.ID, page.Households[0].ID)

	page, err = adapter.SearchHouseholds(ctx, tenantB, "okafor", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Households)

	name := "Renamed"
	_, err = adapter.UpdateHousehold(ctx, tenantB, ref.ID, crm.HouseholdUpdate{Name: &name})
	assert.True(t, crm.IsKind(err, crm.KindMutation), "other tenants cannot update: %v", err)

	_, err = adapter.CreateTask(ctx, tenantA, crm.TaskInput{Subject: "Annual review", HouseholdID: ref.ID})
	require.NoError(t, err)
	overview, err := adapter.QueryTasks(ctx, tenantA, 10, 0)
	require.NoError(t, err)
	assert.Len(t, overview.Tasks, 1)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.NotZero(t, version)
	require.NoError(t, m.Down())
}
