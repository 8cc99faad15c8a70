package memory

import (
	"context"
	"sort"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
)

type TasksRepo struct {
	s *Store
}

// must hold s.mu
func (r *TasksRepo) hydrate(t task.Task) task.Task {
	t.AssigneeID = cloneString(t.AssigneeID)
	t.Project = nil
	t.Assignee = nil

	if p, ok := r.s.projects[t.ProjectID]; ok {
		b := p.Brief()
		t.Project = &b
	}
	if t.AssigneeID != nil {
		if u, ok := r.s.users[*t.AssigneeID]; ok {
			b := u.Brief()
			t.Assignee = &b
		}
	}
	return t
}

// must hold s.mu
func (r *TasksRepo) checkRefs(t task.Task) error {
	if _, ok := r.s.projects[t.ProjectID]; !ok {
		return project.ErrNotFound
	}
	if t.AssigneeID != nil {
		if _, ok := r.s.users[*t.AssigneeID]; !ok {
			return user.ErrNotFound
		}
	}
	return nil
}

func (r *TasksRepo) Create(_ context.Context, t task.Task) (task.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkRefs(t); err != nil {
		return task.Task{}, err
	}

	t.AssigneeID = cloneString(t.AssigneeID)
	r.s.tasks[t.ID] = t
	return r.hydrate(t), nil
}

func (r *TasksRepo) GetByID(_ context.Context, id string) (task.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	return r.hydrate(t), nil
}

func (r *TasksRepo) List(_ context.Context, f task.Filter) ([]task.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]task.Task, 0)
	for _, t := range r.s.tasks {
		if f.Matches(t) {
			out = append(out, r.hydrate(t))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *TasksRepo) Update(_ context.Context, t task.Task) (task.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.tasks[t.ID]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	if err := r.checkRefs(t); err != nil {
		return task.Task{}, err
	}

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.AssigneeID = cloneString(t.AssigneeID)
	r.s.tasks[t.ID] = t
	return r.hydrate(t), nil
}

func (r *TasksRepo) UpdateStatus(_ context.Context, id string, status task.Status) (task.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.tasks[id]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}

	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	r.s.tasks[id] = t
	return r.hydrate(t), nil
}

func (r *TasksRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tasks[id]; !ok {
		return task.ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

func (r *TasksRepo) CountByStatus(_ context.Context, projectID string) (task.StatusCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	counts := task.ZeroCounts()
	for _, t := range r.s.tasks {
		if t.ProjectID == projectID {
			counts[t.Status]++
		}
	}
	return counts, nil
}
