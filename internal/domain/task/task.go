package task

import (
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/google/uuid"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// AllStatuses is the fixed order used by stats responses.
var AllStatuses = []Status{StatusTodo, StatusInProgress, StatusDone}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrInvalidStatus = errors.New("invalid task status")
)

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusTodo:
		return StatusTodo, nil
	case StatusInProgress:
		return StatusInProgress, nil
	case StatusDone:
		return StatusDone, nil
	}
	return "", ErrInvalidStatus
}

type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	ProjectID   string         `json:"projectId"`
	AssigneeID  *string        `json:"assigneeId,omitempty"`
	Project     *project.Brief `json:"project,omitempty"`
	Assignee    *user.Brief    `json:"assignee,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Filter fields left nil match anything.
type Filter struct {
	AssigneeID *string
	Status     *Status
	ProjectID  *string
}

func (f Filter) Matches(t Task) bool {
	if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
		return false
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	return true
}

type CreateTaskRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=200"`
	Description string   `json:"description" binding:"omitempty,max=1000"`
	Status      Status   `json:"status" binding:"required,oneof=TODO IN_PROGRESS DONE"`
	Priority    Priority `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH"`
	ProjectID   string   `json:"projectId" binding:"required,uuid"`
	AssigneeID  *string  `json:"assigneeId" binding:"omitempty,uuid"`
}

// an update without assigneeId unassigns the task
type UpdateTaskRequest = CreateTaskRequest

func NewFromCreateRequest(req CreateTaskRequest) Task {
	now := time.Now().UTC()

	return Task{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		ProjectID:   req.ProjectID,
		AssigneeID:  req.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StatusCounts always carries every status, zero when absent.
type StatusCounts map[Status]int

func ZeroCounts() StatusCounts {
	c := make(StatusCounts, len(AllStatuses))
	for _, s := range AllStatuses {
		c[s] = 0
	}
	return c
}
