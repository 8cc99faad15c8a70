package memory

import (
	"sync"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
)

// Store keeps users, projects and tasks behind one lock so the
// relational rules (unique keys, cascades, restrict) hold like in postgres.
type Store struct {
	mu       sync.RWMutex
	users    map[string]user.User
	projects map[string]project.Project
	tasks    map[string]task.Task
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]user.User),
		projects: make(map[string]project.Project),
		tasks:    make(map[string]task.Task),
	}
}

func (s *Store) Users() *UsersRepo       { return &UsersRepo{s: s} }
func (s *Store) Projects() *ProjectsRepo { return &ProjectsRepo{s: s} }
func (s *Store) Tasks() *TasksRepo       { return &TasksRepo{s: s} }

func cloneUser(u user.User) user.User {
	u.Roles = append([]user.Role(nil), u.Roles...)
	if u.BirthDate != nil {
		d := *u.BirthDate
		u.BirthDate = &d
	}
	return u
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
