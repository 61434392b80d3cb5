package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// FinancialAccountHandler serves the optional financial account capability.
// A CRM without it answers 200 with fscAvailable=false.
type FinancialAccountHandler struct {
	crmHandler
}

// NewFinancialAccountHandler creates a FinancialAccountHandler
func NewFinancialAccountHandler(resolver CRMResolver) *FinancialAccountHandler {
	return &FinancialAccountHandler{crmHandler{resolver: resolver}}
}

// RegisterRoutes registers the financial account routes
func (h *FinancialAccountHandler) RegisterRoutes(rg *gin.RouterGroup) {
	accounts := rg.Group("/financial-accounts")
	accounts.GET("", h.Query)
	accounts.POST("", h.Create)
}

// CreateFinancialAccountsRequest is the body of POST /financial-accounts
type CreateFinancialAccountsRequest struct {
	Accounts []crm.FinancialAccountInput `json:"accounts" binding:"required,min=1,max=200"`
}

// Query handles GET /financial-accounts?household_ids=a,b
func (h *FinancialAccountHandler) Query(c *gin.Context) {
	var q dto.IDsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	opt, available := crm.Optional(adapter)
	if !available || !adapter.Capabilities().FinancialAccounts {
		h.Success(c, crm.UnavailableFinancialAccounts())
		return
	}
	result, err := opt.QueryFinancialAccounts(c.Request.Context(), cc, splitIDs(q.HouseholdIDs))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Create handles POST /financial-accounts
func (h *FinancialAccountHandler) Create(c *gin.Context) {
	var req CreateFinancialAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	opt, available := crm.Optional(adapter)
	if !available || !adapter.Capabilities().FinancialAccounts {
		h.Success(c, &crm.FinancialAccountsCreateResult{
			Accounts: []crm.RecordRef{},
			Errors:   []string{},
		})
		return
	}
	result, err := opt.CreateFinancialAccounts(c.Request.Context(), cc, req.Accounts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// splitIDs parses a comma separated id list, dropping blanks and duplicates
func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
