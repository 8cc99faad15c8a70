package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/utils"
	"github.com/gin-gonic/gin"
)

type TasksService interface {
	Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	Filter(ctx context.Context, f task.Filter) ([]task.Task, error)
	ListByAssignee(ctx context.Context, userID string) ([]task.Task, error)
	Update(ctx context.Context, id string, req task.UpdateTaskRequest) (task.Task, error)
	UpdateStatus(ctx context.Context, id, status string) (task.Task, error)
	Delete(ctx context.Context, id string) error
}

type TasksHandler struct {
	svc TasksService
}

func NewTasksHandler(svc TasksService) *TasksHandler {
	return &TasksHandler{svc: svc}
}

func respondTasks(ctx *gin.Context, items []task.Task) {
	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *TasksHandler) CreateTask(ctx *gin.Context) {
	var req task.CreateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.svc.Create(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create task")
		return
	}

	ctx.JSON(http.StatusCreated, t)
}

func (h *TasksHandler) ListTasks(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.List(cctx)
	if err != nil {
		RespondServiceError(ctx, err, "Could not list tasks")
		return
	}

	respondTasks(ctx, items)
}

// FilterTasks reads assigneeId, status and projectId; any may be omitted.
func (h *TasksHandler) FilterTasks(ctx *gin.Context) {
	var f task.Filter
	fields := make([]FieldError, 0)

	for _, q := range []struct {
		name string
		dst  **string
	}{
		{"assigneeId", &f.AssigneeID},
		{"projectId", &f.ProjectID},
	} {
		v := ctx.Query(q.name)
		if v == "" {
			continue
		}
		if !utils.IsUUID(v) {
			fields = append(fields, FieldError{Field: q.name, Rule: "uuid", Message: validationMessage("uuid", "")})
			continue
		}
		*q.dst = &v
	}

	if raw := ctx.Query("status"); raw != "" {
		s, err := task.ParseStatus(raw)
		if err != nil {
			fields = append(fields, FieldError{
				Field:   "status",
				Rule:    "oneof",
				Param:   "TODO IN_PROGRESS DONE",
				Message: validationMessage("oneof", "TODO IN_PROGRESS DONE"),
			})
		} else {
			f.Status = &s
		}
	}

	if len(fields) > 0 {
		RespondBadRequest(ctx, "Invalid filter", gin.H{"fields": fields})
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.Filter(cctx, f)
	if err != nil {
		RespondServiceError(ctx, err, "Could not filter tasks")
		return
	}

	respondTasks(ctx, items)
}

func (h *TasksHandler) ListByAssignee(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.ListByAssignee(cctx, ctx.Param("userId"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not list tasks")
		return
	}

	respondTasks(ctx, items)
}

func (h *TasksHandler) GetTask(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	t, err := h.svc.Get(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch task")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, t)
}

func (h *TasksHandler) UpdateTask(ctx *gin.Context) {
	var req task.UpdateTaskRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.svc.Update(cctx, ctx.Param("id"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update task")
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TasksHandler) UpdateStatus(ctx *gin.Context) {
	status := ctx.Query("status")
	if status == "" {
		RespondBadRequest(ctx, "Query parameter status is required", nil)
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	t, err := h.svc.UpdateStatus(cctx, ctx.Param("id"), status)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update task status")
		return
	}

	ctx.JSON(http.StatusOK, t)
}

func (h *TasksHandler) DeleteTask(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, ctx.Param("id")); err != nil {
		RespondServiceError(ctx, err, "Could not delete task")
		return
	}

	ctx.Status(http.StatusNoContent)
}
