package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// HouseholdHandler serves household search, detail and maintenance
type HouseholdHandler struct {
	crmHandler
}

// NewHouseholdHandler creates a HouseholdHandler
func NewHouseholdHandler(resolver CRMResolver) *HouseholdHandler {
	return &HouseholdHandler{crmHandler{resolver: resolver}}
}

// RegisterRoutes registers the household routes
func (h *HouseholdHandler) RegisterRoutes(rg *gin.RouterGroup) {
	households := rg.Group("/households")
	households.GET("", h.Search)
	households.POST("", h.Create)
	households.GET("/:id", h.Detail)
	households.PATCH("/:id", h.Update)
}

// Search handles GET /households?q=&limit=&offset=
func (h *HouseholdHandler) Search(c *gin.Context) {
	var q dto.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	limit, offset := crm.NormalizePage(q.Limit, q.Offset, crm.DefaultPageSize)
	page, err := adapter.SearchHouseholds(c.Request.Context(), cc, q.Query, limit, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, page.Households, limit, offset, page.HasMore)
}

// Create handles POST /households
func (h *HouseholdHandler) Create(c *gin.Context) {
	var input crm.HouseholdInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	ref, err := adapter.CreateHousehold(c.Request.Context(), cc, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ref)
}

// Detail handles GET /households/:id
func (h *HouseholdHandler) Detail(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	detail, err := adapter.GetHouseholdDetail(c.Request.Context(), cc, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if detail.Household == nil {
		h.NotFound(c, "household not found")
		return
	}
	h.Success(c, detail)
}

// Update handles PATCH /households/:id
func (h *HouseholdHandler) Update(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	var update crm.HouseholdUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	ref, err := adapter.UpdateHousehold(c.Request.Context(), cc, id, update)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}
