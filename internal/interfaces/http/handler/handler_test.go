package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/advisorhub/backend/internal/domain/crm"
	infracrm "github.com/advisorhub/backend/internal/infrastructure/crm"
	"github.com/advisorhub/backend/internal/infrastructure/crm/local"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
	"github.com/advisorhub/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testTenant = "tenant-a"

// testAPI is a gin engine serving the handlers over a local provider
type testAPI struct {
	t      *testing.T
	engine *gin.Engine
}

type routeRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(local.Models()...))
	return db
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

// newLocalRegistry registers the local provider, optionally wrapping the adapter
func newLocalRegistry(t *testing.T, wrap func(crm.CRM) crm.CRM) *infracrm.Registry {
	t.Helper()
	adapter := local.NewAdapter(openTestDB(t), local.WithClock(steppingClock()))
	return infracrm.NewRegistry("local", infracrm.WithProvider(crm.ProviderLocal, infracrm.Provider{
		New: func() (crm.CRM, error) {
			if wrap != nil {
				return wrap(adapter), nil
			}
			return adapter, nil
		},
		Credentials: func(_ context.Context, req infracrm.AuthRequest) (crm.Credentials, error) {
			return local.BuildCredentials(req.TenantID)
		},
	}))
}

func newTestAPI(t *testing.T, handlers ...routeRegistrar) *testAPI {
	t.Helper()
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Identity(middleware.IdentityConfig{AllowHeaders: true}))
	api := engine.Group("/api/v1")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return &testAPI{t: t, engine: engine}
}

func (a *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderTenantID, testTenant)
	req.Header.Set(middleware.HeaderUserID, "advisor-1")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// decode unmarshals the envelope and its data into out
func decode(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *dto.ErrorInfo  `json:"error"`
		Page    *dto.PageInfo   `json:"page"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw), w.Body.String())
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return dto.Response{Success: raw.Success, Error: raw.Error, Page: raw.Page}
}

// basicCRM hides the optional capabilities of the wrapped adapter
type basicCRM struct {
	crm.CRM
}

func (basicCRM) Capabilities() crm.Capabilities { return crm.Capabilities{} }

// failingCRM fails every household search
type failingCRM struct {
	crm.CRM
	err error
}

func (f failingCRM) SearchHouseholds(context.Context, crm.CallContext, string, int, int) (*crm.HouseholdPage, error) {
	return nil, f.err
}

func (f failingCRM) QueryTasks(context.Context, crm.CallContext, int, int) (*crm.TaskOverview, error) {
	return nil, f.err
}

func createHousehold(t *testing.T, api *testAPI, name string) string {
	t.Helper()
	w := api.do(http.MethodPost, "/api/v1/households", crm.HouseholdInput{Name: name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ref crm.RecordRef
	decode(t, w, &ref)
	require.NotEmpty(t, ref.ID)
	return ref.ID
}
