package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/utils"
)

type UsersRepo struct {
	s *Store
}

// must hold s.mu
func (r *UsersRepo) conflicts(u user.User) error {
	for id, other := range r.s.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return user.ErrEmailTaken
		}
		if other.ExternalID == u.ExternalID {
			return user.ErrExternalIDTaken
		}
	}
	return nil
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.conflicts(u); err != nil {
		return user.User{}, err
	}

	u.Roles = user.NormalizeRoles(u.Roles)
	r.s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

func (r *UsersRepo) GetByID(_ context.Context, id string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UsersRepo) find(match func(user.User) bool) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, u := range r.s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *UsersRepo) GetByExternalID(_ context.Context, externalID string) (user.User, error) {
	return r.find(func(u user.User) bool { return u.ExternalID == externalID })
}

func (r *UsersRepo) GetByEmail(_ context.Context, email string) (user.User, error) {
	return r.find(func(u user.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *UsersRepo) Update(_ context.Context, u user.User) (user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.users[u.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := r.conflicts(u); err != nil {
		return user.User{}, err
	}

	u.CreatedAt = existing.CreatedAt
	u.Roles = user.NormalizeRoles(u.Roles)
	r.s.users[u.ID] = cloneUser(u)
	return cloneUser(u), nil
}

// Delete mirrors the schema: responsible users are protected, assignments are cleared.
func (r *UsersRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return user.ErrNotFound
	}
	for _, p := range r.s.projects {
		if p.ResponsibleID == id {
			return user.ErrHasProjects
		}
	}

	delete(r.s.users, id)
	for tid, t := range r.s.tasks {
		if t.AssigneeID != nil && *t.AssigneeID == id {
			t.AssigneeID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

func (r *UsersRepo) HasProjects(_ context.Context, id string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.projects {
		if p.ResponsibleID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *UsersRepo) ListCursor(_ context.Context, limit int, afterCreatedAt time.Time, afterID string) ([]user.User, *string, bool, error) {
	r.s.mu.RLock()
	all := make([]user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		all = append(all, cloneUser(u))
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	out := make([]user.User, 0, limit)
	for _, u := range all {
		if !afterCreatedAt.IsZero() {
			if u.CreatedAt.Before(afterCreatedAt) || (u.CreatedAt.Equal(afterCreatedAt) && u.ID <= afterID) {
				continue
			}
		}
		out = append(out, u)
		if len(out) > limit {
			break
		}
	}

	if len(out) <= limit {
		return out, nil, false, nil
	}

	out = out[:limit]
	last := out[len(out)-1]
	cur, err := utils.EncodeUserCursor(last.CreatedAt, last.ID)
	if err != nil {
		return nil, nil, false, err
	}
	return out, &cur, true, nil
}
