package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/application/practice"
	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// PracticeService is the slice of practice.Service used by the API
type PracticeService interface {
	OnboardHousehold(ctx context.Context, cc crm.CallContext, req practice.OnboardingRequest) (*practice.OnboardingResult, error)
	Dashboard(ctx context.Context, cc crm.CallContext, limit, offset int) (*practice.Dashboard, error)
}

// PracticeHandler serves the advisor workflows built on the CRM port
type PracticeHandler struct {
	crmHandler
	service PracticeService
}

// NewPracticeHandler creates a PracticeHandler
func NewPracticeHandler(resolver CRMResolver, service PracticeService) *PracticeHandler {
	return &PracticeHandler{crmHandler: crmHandler{resolver: resolver}, service: service}
}

// RegisterRoutes registers the practice routes
func (h *PracticeHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/dashboard", h.Dashboard)
	rg.POST("/onboarding", h.Onboard)
}

// Dashboard handles GET /dashboard?limit=&offset=
func (h *PracticeHandler) Dashboard(c *gin.Context) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	_, cc, ok := h.session(c)
	if !ok {
		return
	}
	dashboard, err := h.service.Dashboard(c.Request.Context(), cc, q.Limit, q.Offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dashboard)
}

// Onboard handles POST /onboarding. When a step fails the error response
// carries what was created before the failure.
func (h *PracticeHandler) Onboard(c *gin.Context) {
	var req practice.OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	_, cc, ok := h.session(c)
	if !ok {
		return
	}
	result, err := h.service.OnboardHousehold(c.Request.Context(), cc, req)
	if err != nil {
		var stepErr *practice.OnboardingError
		if errors.As(err, &stepErr) {
			h.respondError(c, err, stepErr.Partial)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}
