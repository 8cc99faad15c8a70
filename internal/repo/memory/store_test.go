package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/google/uuid"
)

func newUser(email string, createdAt time.Time) user.User {
	return user.User{
		ID:         uuid.NewString(),
		ExternalID: "kc-" + email,
		LastName:   "Doe",
		FirstName:  "Jo",
		Email:      email,
		Roles:      []user.Role{user.RoleUser},
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestUsersRepo_UniqueKeys(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()

	a := newUser("a@example.com", time.Now())
	if _, err := users.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	dupEmail := newUser("a@example.com", time.Now())
	if _, err := users.Create(ctx, dupEmail); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("want ErrEmailTaken, got %v", err)
	}

	upper := newUser("A@Example.com", time.Now())
	if _, err := users.Create(ctx, upper); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("emails differing only in case must collide, got %v", err)
	}
	if got, err := users.GetByEmail(ctx, "A@EXAMPLE.COM"); err != nil || got.ID != a.ID {
		t.Fatalf("lookup by email should ignore case: %v %+v", err, got)
	}

	dupExt := newUser("b@example.com", time.Now())
	dupExt.ExternalID = a.ExternalID
	if _, err := users.Create(ctx, dupExt); !errors.Is(err, user.ErrExternalIDTaken) {
		t.Fatalf("want ErrExternalIDTaken, got %v", err)
	}

	exists, err := users.ExistsByEmail(ctx, "a@example.com")
	if err != nil || !exists {
		t.Fatalf("exists: %v %v", exists, err)
	}
	exists, _ = users.ExistsByEmail(ctx, "nobody@example.com")
	if exists {
		t.Fatalf("unexpected exists")
	}
}

func TestUsersRepo_ReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()

	u, _ := users.Create(ctx, newUser("c@example.com", time.Now()))
	u.Roles[0] = user.RoleAdmin

	got, _ := users.GetByID(ctx, u.ID)
	if got.Roles[0] != user.RoleUser {
		t.Fatalf("caller mutation leaked into the store: %v", got.Roles)
	}
}

func TestStore_RelationalRules(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	owner, _ := s.Users().Create(ctx, newUser("owner@example.com", time.Now()))
	dev, _ := s.Users().Create(ctx, newUser("dev@example.com", time.Now()))

	p, err := s.Projects().Create(ctx, project.Project{ID: uuid.NewString(), Name: "Apollo", StartDate: date.New(2025, 1, 1), ResponsibleID: owner.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Responsible == nil || p.Responsible.Email != "owner@example.com" {
		t.Fatalf("responsible brief missing: %+v", p.Responsible)
	}

	devID := dev.ID
	tk, err := s.Tasks().Create(ctx, task.Task{ID: uuid.NewString(), Title: "wire", Status: task.StatusTodo, Priority: task.PriorityHigh, ProjectID: p.ID, AssigneeID: &devID})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if tk.Assignee == nil || tk.Project == nil || tk.Project.Name != "Apollo" {
		t.Fatalf("briefs missing: %+v", tk)
	}

	if err := s.Users().Delete(ctx, owner.ID); !errors.Is(err, user.ErrHasProjects) {
		t.Fatalf("responsible user delete: want ErrHasProjects, got %v", err)
	}

	if err := s.Users().Delete(ctx, dev.ID); err != nil {
		t.Fatalf("delete assignee: %v", err)
	}
	got, _ := s.Tasks().GetByID(ctx, tk.ID)
	if got.AssigneeID != nil || got.Assignee != nil {
		t.Fatalf("assignment should be cleared: %+v", got)
	}

	if err := s.Projects().Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := s.Tasks().GetByID(ctx, tk.ID); !errors.Is(err, task.ErrNotFound) {
		t.Fatalf("tasks should cascade, got %v", err)
	}
}

func TestTasksRepo_CountByStatusZeroFilled(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	owner, _ := s.Users().Create(ctx, newUser("o@example.com", time.Now()))
	p, _ := s.Projects().Create(ctx, project.Project{ID: uuid.NewString(), Name: "P", StartDate: date.New(2025, 1, 1), ResponsibleID: owner.ID})

	for _, st := range []task.Status{task.StatusTodo, task.StatusTodo, task.StatusDone} {
		_, _ = s.Tasks().Create(ctx, task.Task{ID: uuid.NewString(), Title: "t", Status: st, Priority: task.PriorityLow, ProjectID: p.ID})
	}

	counts, _ := s.Tasks().CountByStatus(ctx, p.ID)
	if counts[task.StatusTodo] != 2 || counts[task.StatusDone] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if n, ok := counts[task.StatusInProgress]; !ok || n != 0 {
		t.Fatalf("IN_PROGRESS must be present and zero: %v", counts)
	}
}

func TestUsersRepo_ListCursorPages(t *testing.T) {
	ctx := context.Background()
	users := NewStore().Users()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _ = users.Create(ctx, newUser(string(rune('a'+i))+"@example.com", base.Add(time.Duration(i)*time.Minute)))
	}

	page1, next, more, err := users.ListCursor(ctx, 2, time.Time{}, "")
	if err != nil || len(page1) != 2 || !more || next == nil {
		t.Fatalf("page1: len=%d more=%v next=%v err=%v", len(page1), more, next, err)
	}

	last := page1[len(page1)-1]
	page2, _, _, _ := users.ListCursor(ctx, 2, last.CreatedAt, last.ID)
	if len(page2) != 2 || page2[0].Email != "c@example.com" {
		t.Fatalf("page2 should continue after %s: %+v", last.Email, page2)
	}

	tail, next, more, _ := users.ListCursor(ctx, 10, page2[1].CreatedAt, page2[1].ID)
	if len(tail) != 1 || more || next != nil {
		t.Fatalf("tail: len=%d more=%v", len(tail), more)
	}
}
