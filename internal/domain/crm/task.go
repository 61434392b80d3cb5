package crm

import (
	"encoding/json"
	"time"
)

// Task statuses shared by all providers
const (
	TaskStatusNotStarted = "Not Started"
	TaskStatusInProgress = "In Progress"
	TaskStatusCompleted  = "Completed"
	TaskStatusDeferred   = "Deferred"
)

// Task priorities shared by all providers
const (
	TaskPriorityHigh   = "High"
	TaskPriorityNormal = "Normal"
	TaskPriorityLow    = "Low"
)

// Task is a follow-up item, usually attached to a household
type Task struct {
	ID            string          `json:"id"`
	Subject       string          `json:"subject"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	Description   string          `json:"description"`
	CreatedAt     *time.Time      `json:"createdAt"`
	DueDate       *time.Time      `json:"dueDate"`
	HouseholdID   *string         `json:"householdId"`
	HouseholdName *string         `json:"householdName"`
	ContactID     *string         `json:"contactId"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// IsCompleted reports whether the task is closed
func (t Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// TaskInput is the data needed to create a task
type TaskInput struct {
	Subject     string     `json:"subject" validate:"required,max=255"`
	Status      string     `json:"status" validate:"omitempty,oneof='Not Started' 'In Progress' 'Completed' 'Deferred'"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=High Normal Low"`
	Description string     `json:"description" validate:"max=32000"`
	DueDate     *time.Time `json:"dueDate"`
	HouseholdID string     `json:"householdId" validate:"required"`
	ContactID   *string    `json:"contactId"`
}

// Validate checks the input before it is sent to a provider
func (in TaskInput) Validate() error {
	return validateStruct(in)
}

// WithDefaults fills status and priority when they are empty
func (in TaskInput) WithDefaults() TaskInput {
	if in.Status == "" {
		in.Status = TaskStatusNotStarted
	}
	if in.Priority == "" {
		in.Priority = TaskPriorityNormal
	}
	return in
}

// TaskOverview is the task dashboard: recent tasks plus recent households,
// each paged independently
type TaskOverview struct {
	Tasks             []Task      `json:"tasks"`
	Households        []Household `json:"households"`
	TasksHasMore      bool        `json:"tasksHasMore"`
	HouseholdsHasMore bool        `json:"householdsHasMore"`
}
