package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/domain/crm"
)

// ContactHandler serves contact search, batch creation and relationships
type ContactHandler struct {
	crmHandler
}

// NewContactHandler creates a ContactHandler
func NewContactHandler(resolver CRMResolver) *ContactHandler {
	return &ContactHandler{crmHandler{resolver: resolver}}
}

// RegisterRoutes registers the contact routes
func (h *ContactHandler) RegisterRoutes(rg *gin.RouterGroup) {
	contacts := rg.Group("/contacts")
	contacts.GET("", h.Search)
	contacts.POST("", h.CreateBatch)
	contacts.POST("/:id/relationships", h.CreateRelationship)
}

// SearchContactsQuery binds GET /contacts
type SearchContactsQuery struct {
	Query string `form:"q" binding:"max=255"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// CreateContactsRequest is the body of POST /contacts
type CreateContactsRequest struct {
	Contacts []crm.ContactInput `json:"contacts" binding:"required,min=1,max=200"`
}

// CreateRelationshipRequest is the body of POST /contacts/:id/relationships
type CreateRelationshipRequest struct {
	RelatedContactID string `json:"relatedContactId" binding:"required"`
	Role             string `json:"role" binding:"required,max=255"`
}

// RelationshipResponse reports a created relationship. Available is false
// when the CRM does not model relationships.
type RelationshipResponse struct {
	Available    bool           `json:"available"`
	Relationship *crm.RecordRef `json:"relationship"`
}

// Search handles GET /contacts?q=&limit=
func (h *ContactHandler) Search(c *gin.Context) {
	var q SearchContactsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	contacts, err := adapter.SearchContacts(c.Request.Context(), cc, q.Query, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contacts)
}

// CreateBatch handles POST /contacts. Each contact succeeds or fails on its
// own; the response lists both outcomes.
func (h *ContactHandler) CreateBatch(c *gin.Context) {
	var req CreateContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	result, err := adapter.CreateContacts(c.Request.Context(), cc, req.Contacts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// CreateRelationship handles POST /contacts/:id/relationships
func (h *ContactHandler) CreateRelationship(c *gin.Context) {
	contactID, ok := h.bindID(c)
	if !ok {
		return
	}
	var req CreateRelationshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	opt, available := crm.Optional(adapter)
	if !available || !adapter.Capabilities().ContactRelationships {
		h.Success(c, RelationshipResponse{Available: false})
		return
	}
	ref, err := opt.CreateContactRelationship(c.Request.Context(), cc, contactID, req.RelatedContactID, req.Role)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if ref == nil {
		h.Success(c, RelationshipResponse{Available: false})
		return
	}
	h.Created(c, RelationshipResponse{Available: true, Relationship: ref})
}
