package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/infrastructure/persistence"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// DatabaseChecker reports database liveness and pool usage.
// *persistence.Database implements it.
type DatabaseChecker interface {
	Ping() error
	Stats() (persistence.ConnectionStats, error)
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	BaseHandler
	resolver  CRMResolver
	database  DatabaseChecker
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. database may be nil when the
// configured provider does not use the local database.
func NewHealthHandler(resolver CRMResolver, database DatabaseChecker, version string) *HealthHandler {
	return &HealthHandler{
		resolver:  resolver,
		database:  database,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	GoVersion    string            `json:"goVersion"`
	Uptime       string            `json:"uptime"`
	Provider     crm.ProviderID    `json:"provider,omitempty"`
	Capabilities *crm.Capabilities `json:"capabilities,omitempty"`
	Database     *DatabaseHealth   `json:"database,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
}

// DatabaseHealth reports the database pool
type DatabaseHealth struct {
	Status string                       `json:"status"`
	Stats  *persistence.ConnectionStats `json:"stats,omitempty"`
}

// RegisterRoutes registers GET /health
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
}

// Health reports whether the CRM provider and the database are usable.
// Any failed check answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Errors:    map[string]string{},
	}

	if adapter, err := h.resolver.Adapter(); err != nil {
		resp.Errors["crm"] = err.Error()
	} else {
		caps := adapter.Capabilities()
		resp.Provider = adapter.ProviderID()
		resp.Capabilities = &caps
	}

	if h.database != nil {
		resp.Database = &DatabaseHealth{Status: "ok"}
		if err := h.database.Ping(); err != nil {
			resp.Database.Status = "unavailable"
			resp.Errors["database"] = err.Error()
		} else if stats, err := h.database.Stats(); err == nil {
			resp.Database.Stats = &stats
		}
	}

	status := http.StatusOK
	if len(resp.Errors) > 0 {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}
