package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/advisorhub/backend/internal/domain/crm"
	"github.com/advisorhub/backend/internal/interfaces/http/dto"
)

// TaskHandler serves the task overview and task mutations
type TaskHandler struct {
	crmHandler
}

// NewTaskHandler creates a TaskHandler
func NewTaskHandler(resolver CRMResolver) *TaskHandler {
	return &TaskHandler{crmHandler{resolver: resolver}}
}

// RegisterRoutes registers the task routes
func (h *TaskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	tasks.GET("", h.Overview)
	tasks.POST("", h.Create)
	tasks.POST("/batch", h.CreateBatch)
	tasks.POST("/:id/complete", h.Complete)
}

// CreateTasksRequest is the body of POST /tasks/batch
type CreateTasksRequest struct {
	Tasks []crm.TaskInput `json:"tasks" binding:"required,min=1,max=200"`
}

// Overview handles GET /tasks?limit=&offset=. Tasks and households are paged
// independently; each carries its own has-more flag.
func (h *TaskHandler) Overview(c *gin.Context) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	limit, offset := crm.NormalizePage(q.Limit, q.Offset, crm.DefaultPageSize)
	overview, err := adapter.QueryTasks(c.Request.Context(), cc, limit, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Page(c, overview, limit, offset, overview.TasksHasMore || overview.HouseholdsHasMore)
}

// Create handles POST /tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var input crm.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	ref, err := adapter.CreateTask(c.Request.Context(), cc, input.WithDefaults())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, ref)
}

// CreateBatch handles POST /tasks/batch
func (h *TaskHandler) CreateBatch(c *gin.Context) {
	var req CreateTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	tasks := make([]crm.TaskInput, len(req.Tasks))
	for i, t := range req.Tasks {
		tasks[i] = t.WithDefaults()
	}
	result, err := adapter.CreateTasksBatch(c.Request.Context(), cc, tasks)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Complete handles POST /tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	id, ok := h.bindID(c)
	if !ok {
		return
	}
	adapter, cc, ok := h.session(c)
	if !ok {
		return
	}
	ref, err := adapter.CompleteTask(c.Request.Context(), cc, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ref)
}
