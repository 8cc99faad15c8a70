package memory

import (
	"context"
	"sort"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/user"
)

type ProjectsRepo struct {
	s *Store
}

// must hold s.mu
func (r *ProjectsRepo) hydrate(p project.Project) project.Project {
	if p.EndDate != nil {
		d := *p.EndDate
		p.EndDate = &d
	}
	if u, ok := r.s.users[p.ResponsibleID]; ok {
		b := u.Brief()
		p.Responsible = &b
	}
	return p
}

func (r *ProjectsRepo) Create(_ context.Context, p project.Project) (project.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[p.ResponsibleID]; !ok {
		return project.Project{}, user.ErrNotFound
	}

	p.Responsible = nil
	r.s.projects[p.ID] = p
	return r.hydrate(p), nil
}

func (r *ProjectsRepo) GetByID(_ context.Context, id string) (project.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return r.hydrate(p), nil
}

func (r *ProjectsRepo) list(match func(project.Project) bool) []project.Project {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]project.Project, 0)
	for _, p := range r.s.projects {
		if match(p) {
			out = append(out, r.hydrate(p))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out
}

func (r *ProjectsRepo) List(_ context.Context) ([]project.Project, error) {
	return r.list(func(project.Project) bool { return true }), nil
}

func (r *ProjectsRepo) ListByResponsible(_ context.Context, userID string) ([]project.Project, error) {
	return r.list(func(p project.Project) bool { return p.ResponsibleID == userID }), nil
}

func (r *ProjectsRepo) Update(_ context.Context, p project.Project) (project.Project, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.projects[p.ID]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	if _, ok := r.s.users[p.ResponsibleID]; !ok {
		return project.Project{}, user.ErrNotFound
	}

	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Responsible = nil
	r.s.projects[p.ID] = p
	return r.hydrate(p), nil
}

// Delete cascades to the project's tasks.
func (r *ProjectsRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.projects[id]; !ok {
		return project.ErrNotFound
	}

	delete(r.s.projects, id)
	for tid, t := range r.s.tasks {
		if t.ProjectID == id {
			delete(r.s.tasks, tid)
		}
	}
	return nil
}
