package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/gin-gonic/gin"
)

type ProjectsService interface {
	Create(ctx context.Context, req project.CreateProjectRequest) (project.Project, error)
	Get(ctx context.Context, id string) (project.Project, error)
	List(ctx context.Context) ([]project.Project, error)
	ListByResponsible(ctx context.Context, userID string) ([]project.Project, error)
	Update(ctx context.Context, id string, req project.UpdateProjectRequest) (project.Project, error)
	Delete(ctx context.Context, id string) error
}

type ProjectTasks interface {
	ListByProject(ctx context.Context, projectID string) ([]task.Task, error)
	Stats(ctx context.Context, projectID string) (task.StatusCounts, error)
}

type ProjectsHandler struct {
	svc   ProjectsService
	tasks ProjectTasks
}

func NewProjectsHandler(svc ProjectsService, tasks ProjectTasks) *ProjectsHandler {
	return &ProjectsHandler{svc: svc, tasks: tasks}
}

func (h *ProjectsHandler) CreateProject(ctx *gin.Context) {
	var req project.CreateProjectRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := h.svc.Create(cctx, req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not create project")
		return
	}

	ctx.JSON(http.StatusCreated, p)
}

func (h *ProjectsHandler) ListProjects(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.List(cctx)
	if err != nil {
		RespondServiceError(ctx, err, "Could not list projects")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ProjectsHandler) GetProject(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	p, err := h.svc.Get(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not fetch project")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, p)
}

func (h *ProjectsHandler) ListByResponsible(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.svc.ListByResponsible(cctx, ctx.Param("userId"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not list projects")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ProjectsHandler) UpdateProject(ctx *gin.Context) {
	var req project.UpdateProjectRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	p, err := h.svc.Update(cctx, ctx.Param("id"), req)
	if err != nil {
		RespondServiceError(ctx, err, "Could not update project")
		return
	}

	ctx.JSON(http.StatusOK, p)
}

func (h *ProjectsHandler) DeleteProject(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := h.svc.Delete(cctx, ctx.Param("id")); err != nil {
		RespondServiceError(ctx, err, "Could not delete project")
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ProjectsHandler) ListProjectTasks(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 3*time.Second)
	defer cancel()

	items, err := h.tasks.ListByProject(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not list tasks")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}

func (h *ProjectsHandler) TaskStats(ctx *gin.Context) {
	cctx, cancel := withTimeout(ctx, 2*time.Second)
	defer cancel()

	counts, err := h.tasks.Stats(cctx, ctx.Param("id"))
	if err != nil {
		RespondServiceError(ctx, err, "Could not compute task stats")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"projectId": ctx.Param("id"),
		"counts":    counts,
	})
}
