// Package handler implements the advisor API endpoints on top of the CRM port.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/advisorhub/backend/internal/domain/crm"
	infracrm "github.com/advisorhub/backend/internal/infrastructure/crm"
	"github.com/advisorhub/backend/internal/infrastructure/logger"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
	"github.com/advisorhub/backend/internal/interfaces/http/middleware"
)

// CRMResolver returns the configured adapter and builds per-request call
// contexts for it. *infracrm.Registry implements it.
type CRMResolver interface {
	Adapter() (crm.CRM, error)
	BuildContext(ctx context.Context, req infracrm.AuthRequest) (crm.CallContext, error)
}

// BaseHandler provides common response helpers
type BaseHandler struct{}

// Success sends a 200 response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Page sends one page of results
func (h *BaseHandler) Page(c *gin.Context, data any, limit, offset int, hasMore bool) {
	c.JSON(http.StatusOK, dto.NewPageResponse(data, limit, offset, hasMore))
}

// Error sends an error envelope with the given status
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(dto.ErrorInfo{
		Code:      code,
		Message:   message,
		RequestID: middleware.GetRequestID(c),
	}))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// HandleError maps err through the CRM error taxonomy. Server-side failures
// are logged with the full error since the response hides the detail.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.respondError(c, err, nil)
}

// respondError writes the error envelope, optionally carrying partial data
func (h *BaseHandler) respondError(c *gin.Context, err error, data any) {
	status, info := dto.FromError(err)
	info.RequestID = middleware.GetRequestID(c)
	if status >= http.StatusInternalServerError {
		logger.L(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	resp := dto.NewErrorResponse(info)
	resp.Data = data
	c.JSON(status, resp)
}

// crmHandler is embedded by handlers that call the CRM port
type crmHandler struct {
	BaseHandler
	resolver CRMResolver
}

// session resolves the adapter and call context for the caller. On failure
// the error response has been written and ok is false.
func (h *crmHandler) session(c *gin.Context) (crm.CRM, crm.CallContext, bool) {
	adapter, err := h.resolver.Adapter()
	if err != nil {
		h.HandleError(c, err)
		return nil, crm.CallContext{}, false
	}
	cc, err := h.resolver.BuildContext(c.Request.Context(), infracrm.AuthRequest{
		TenantID: middleware.GetTenantID(c),
		UserID:   middleware.GetUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return nil, crm.CallContext{}, false
	}
	return adapter, cc, true
}

// bindID binds the :id path parameter
func (h *BaseHandler) bindID(c *gin.Context) (string, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "invalid id")
		return "", false
	}
	return req.ID, true
}
