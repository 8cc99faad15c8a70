package planning

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/projecthub/internal/cache"
	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/utils"
	"go.opentelemetry.io/otel/attribute"
)

type TaskStore interface {
	Create(ctx context.Context, t task.Task) (task.Task, error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	List(ctx context.Context, f task.Filter) ([]task.Task, error)
	Update(ctx context.Context, t task.Task) (task.Task, error)
	UpdateStatus(ctx context.Context, id string, status task.Status) (task.Task, error)
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, projectID string) (task.StatusCounts, error)
}

type ProjectLookup interface {
	GetByID(ctx context.Context, id string) (project.Project, error)
}

// CacheMetrics counts stats cache hits and misses; nil disables it.
type CacheMetrics interface {
	ObserveCache(result string)
}

type TaskService struct {
	tasks    TaskStore
	projects ProjectLookup
	users    UserLookup
	cache    cache.Store
	metrics  CacheMetrics
	log      *slog.Logger
}

func NewTaskService(tasks TaskStore, projects ProjectLookup, users UserLookup, c cache.Store, metrics CacheMetrics, log *slog.Logger) *TaskService {
	if log == nil {
		log = slog.Default()
	}
	return &TaskService{tasks: tasks, projects: projects, users: users, cache: c, metrics: metrics, log: log}
}

func (s *TaskService) checkRefs(ctx context.Context, req task.CreateTaskRequest) error {
	if _, err := s.projects.GetByID(ctx, req.ProjectID); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			return missingRef("projectId")
		}
		return err
	}

	if req.AssigneeID != nil {
		if _, err := s.users.GetByID(ctx, *req.AssigneeID); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return missingRef("assigneeId")
			}
			return err
		}
	}
	return nil
}

func mapTaskWriteErr(err error) error {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return missingRef("projectId")
	case errors.Is(err, user.ErrNotFound):
		return missingRef("assigneeId")
	}
	return err
}

func (s *TaskService) Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error) {
	ctx, span := observability.Tracer().Start(ctx, "planning.task.create")
	defer span.End()

	if err := s.checkRefs(ctx, req); err != nil {
		return task.Task{}, err
	}

	t, err := s.tasks.Create(ctx, task.NewFromCreateRequest(req))
	if err != nil {
		return task.Task{}, mapTaskWriteErr(err)
	}

	span.SetAttributes(attribute.String("task.id", t.ID))
	s.InvalidateStats(ctx, t.ProjectID)
	return t, nil
}

func (s *TaskService) Get(ctx context.Context, id string) (task.Task, error) {
	return s.tasks.GetByID(ctx, id)
}

func (s *TaskService) List(ctx context.Context) ([]task.Task, error) {
	return s.tasks.List(ctx, task.Filter{})
}

func (s *TaskService) Filter(ctx context.Context, f task.Filter) ([]task.Task, error) {
	return s.tasks.List(ctx, f)
}

func (s *TaskService) ListByProject(ctx context.Context, projectID string) ([]task.Task, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, task.Filter{ProjectID: &projectID})
}

func (s *TaskService) ListByAssignee(ctx context.Context, userID string) ([]task.Task, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.tasks.List(ctx, task.Filter{AssigneeID: &userID})
}

// Update replaces every field. A request without assigneeId unassigns the task.
func (s *TaskService) Update(ctx context.Context, id string, req task.UpdateTaskRequest) (task.Task, error) {
	ctx, span := observability.Tracer().Start(ctx, "planning.task.update")
	defer span.End()

	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return task.Task{}, err
	}

	if err := s.checkRefs(ctx, req); err != nil {
		return task.Task{}, err
	}

	oldProject := t.ProjectID

	t.Title = req.Title
	t.Description = req.Description
	t.Status = req.Status
	t.Priority = req.Priority
	t.ProjectID = req.ProjectID
	t.AssigneeID = req.AssigneeID
	t.UpdatedAt = time.Now().UTC()

	updated, err := s.tasks.Update(ctx, t)
	if err != nil {
		return task.Task{}, mapTaskWriteErr(err)
	}

	s.InvalidateStats(ctx, oldProject)
	if updated.ProjectID != oldProject {
		s.InvalidateStats(ctx, updated.ProjectID)
	}
	return updated, nil
}

func (s *TaskService) UpdateStatus(ctx context.Context, id, rawStatus string) (task.Task, error) {
	status, err := task.ParseStatus(rawStatus)
	if err != nil {
		return task.Task{}, err
	}

	t, err := s.tasks.UpdateStatus(ctx, id, status)
	if err != nil {
		return task.Task{}, err
	}

	s.InvalidateStats(ctx, t.ProjectID)
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, id string) error {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return err
	}

	s.InvalidateStats(ctx, t.ProjectID)
	return nil
}

// Stats counts the project's tasks per status. Every status is present.
func (s *TaskService) Stats(ctx context.Context, projectID string) (task.StatusCounts, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	key := utils.TaskStatsCacheKey(projectID)

	if s.cache != nil {
		b, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			// a broken cache only costs us the query
			s.log.WarnContext(ctx, "task_stats.cache_get_failed", "project_id", projectID, "err", err)
		}
		if ok {
			var counts task.StatusCounts
			if err := json.Unmarshal(b, &counts); err == nil {
				s.observeCache("hit")
				return counts, nil
			}
		}
		s.observeCache("miss")
	}

	counts, err := s.tasks.CountByStatus(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(counts); err == nil {
			if err := s.cache.Set(ctx, key, b); err != nil {
				s.log.WarnContext(ctx, "task_stats.cache_set_failed", "project_id", projectID, "err", err)
			}
		}
	}
	return counts, nil
}

func (s *TaskService) InvalidateStats(ctx context.Context, projectID string) {
	if s.cache == nil || projectID == "" {
		return
	}
	if err := s.cache.Delete(ctx, utils.TaskStatsCacheKey(projectID)); err != nil {
		s.log.WarnContext(ctx, "task_stats.cache_invalidate_failed", "project_id", projectID, "err", err)
	}
}

func (s *TaskService) observeCache(result string) {
	if s.metrics != nil {
		s.metrics.ObserveCache(result)
	}
}
