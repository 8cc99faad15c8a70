package planning

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ProjectStore interface {
	Create(ctx context.Context, p project.Project) (project.Project, error)
	GetByID(ctx context.Context, id string) (project.Project, error)
	List(ctx context.Context) ([]project.Project, error)
	ListByResponsible(ctx context.Context, userID string) ([]project.Project, error)
	Update(ctx context.Context, p project.Project) (project.Project, error)
	Delete(ctx context.Context, id string) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// StatsInvalidator drops cached task statistics for a project.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context, projectID string)
}

type ProjectService struct {
	projects ProjectStore
	users    UserLookup
	stats    StatsInvalidator
	log      *slog.Logger
}

func NewProjectService(projects ProjectStore, users UserLookup, stats StatsInvalidator, log *slog.Logger) *ProjectService {
	if log == nil {
		log = slog.Default()
	}
	return &ProjectService{projects: projects, users: users, stats: stats, log: log}
}

func validateProject(ctx context.Context, users UserLookup, req project.CreateProjectRequest) error {
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return endBeforeStart()
	}

	if _, err := users.GetByID(ctx, req.ResponsibleID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return missingRef("responsibleId")
		}
		return err
	}
	return nil
}

// a responsible user deleted between the check and the write
func mapProjectWriteErr(err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return missingRef("responsibleId")
	}
	return err
}

func (s *ProjectService) Create(ctx context.Context, req project.CreateProjectRequest) (project.Project, error) {
	ctx, span := observability.Tracer().Start(ctx, "planning.project.create")
	defer span.End()

	if err := validateProject(ctx, s.users, req); err != nil {
		return project.Project{}, err
	}

	p, err := s.projects.Create(ctx, project.NewFromCreateRequest(req))
	if err != nil {
		return project.Project{}, mapProjectWriteErr(err)
	}

	span.SetAttributes(attribute.String("project.id", p.ID))
	s.log.InfoContext(ctx, "project.created", "project_id", p.ID, "responsible_id", p.ResponsibleID)
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (project.Project, error) {
	return s.projects.GetByID(ctx, id)
}

func (s *ProjectService) List(ctx context.Context) ([]project.Project, error) {
	return s.projects.List(ctx)
}

func (s *ProjectService) ListByResponsible(ctx context.Context, userID string) ([]project.Project, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.projects.ListByResponsible(ctx, userID)
}

func (s *ProjectService) Update(ctx context.Context, id string, req project.UpdateProjectRequest) (project.Project, error) {
	ctx, span := observability.Tracer().Start(ctx, "planning.project.update", trace.WithAttributes(attribute.String("project.id", id)))
	defer span.End()

	p, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return project.Project{}, err
	}

	if err := validateProject(ctx, s.users, req); err != nil {
		return project.Project{}, err
	}

	p.Name = req.Name
	p.Description = req.Description
	p.StartDate = *req.StartDate
	p.EndDate = req.EndDate
	p.ResponsibleID = req.ResponsibleID
	p.UpdatedAt = time.Now().UTC()

	updated, err := s.projects.Update(ctx, p)
	if err != nil {
		return project.Project{}, mapProjectWriteErr(err)
	}
	return updated, nil
}

// Delete removes the project and, through the schema, its tasks.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	if s.stats != nil {
		s.stats.InvalidateStats(ctx, id)
	}
	s.log.InfoContext(ctx, "project.deleted", "project_id", id)
	return nil
}
