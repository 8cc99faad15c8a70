package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/task"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TasksRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTasksRepo(pool *pgxpool.Pool, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{pool: pool, prom: prom}
}

func (r *TasksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority, t.project_id, t.assignee_id, t.created_at, t.updated_at,
	       p.name, p.description,
	       a.last_name, a.first_name, a.email
	FROM tasks t
	JOIN projects p ON p.id = t.project_id
	LEFT JOIN users a ON a.id = t.assignee_id
`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	var status, priority string
	var pb project.Brief
	var lastName, firstName, email *string

	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &t.ProjectID, &t.AssigneeID, &t.CreatedAt, &t.UpdatedAt,
		&pb.Name, &pb.Description,
		&lastName, &firstName, &email,
	)
	if err != nil {
		return task.Task{}, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	pb.ID = t.ProjectID
	t.Project = &pb

	if t.AssigneeID != nil && lastName != nil {
		t.Assignee = &user.Brief{ID: *t.AssigneeID, LastName: *lastName, FirstName: deref(firstName), Email: deref(email)}
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mapTaskWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		if strings.Contains(pgErr.ConstraintName, "assignee") {
			return user.ErrNotFound
		}
		return project.ErrNotFound
	}
	return err
}

func (r *TasksRepo) Create(ctx context.Context, t task.Task) (task.Task, error) {
	err := r.observe("tasks.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO tasks (id, title, description, status, priority, project_id, assignee_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.ProjectID, t.AssigneeID, t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return task.Task{}, mapTaskWriteErr(err)
	}
	return r.GetByID(ctx, t.ID)
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (task.Task, error) {
	if !utils.IsUUID(id) {
		return task.Task{}, task.ErrNotFound
	}

	var t task.Task
	err := r.observe("tasks.get_by_id", func() error {
		var err error
		t, err = scanTask(r.pool.QueryRow(ctx, taskSelect+` WHERE t.id = $1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, task.ErrNotFound
		}
		return task.Task{}, err
	}
	return t, nil
}

// List returns the tasks matching every non-nil filter field.
func (r *TasksRepo) List(ctx context.Context, f task.Filter) ([]task.Task, error) {
	var conds []string
	var args []any

	argsPosition := 1

	if f.ProjectID != nil {
		conds = append(conds, fmt.Sprintf("t.project_id = $%d", argsPosition))
		args = append(args, *f.ProjectID)
		argsPosition++
	}
	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("t.status = $%d", argsPosition))
		args = append(args, string(*f.Status))
		argsPosition++
	}
	if f.AssigneeID != nil {
		conds = append(conds, fmt.Sprintf("t.assignee_id = $%d", argsPosition))
		args = append(args, *f.AssigneeID)
	}

	query := taskSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.created_at ASC, t.id ASC"

	var rows pgx.Rows
	err := r.observe("tasks.list", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]task.Task, 0)
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TasksRepo) Update(ctx context.Context, t task.Task) (task.Task, error) {
	var tag pgconn.CommandTag

	err := r.observe("tasks.update", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE tasks
			SET title = $2,
			    description = $3,
			    status = $4,
			    priority = $5,
			    project_id = $6,
			    assignee_id = $7,
			    updated_at = NOW()
			WHERE id = $1
		`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), t.ProjectID, t.AssigneeID)
		return err
	})
	if err != nil {
		return task.Task{}, mapTaskWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return r.GetByID(ctx, t.ID)
}

func (r *TasksRepo) UpdateStatus(ctx context.Context, id string, status task.Status) (task.Task, error) {
	if !utils.IsUUID(id) {
		return task.Task{}, task.ErrNotFound
	}

	var tag pgconn.CommandTag
	err := r.observe("tasks.update_status", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	if tag.RowsAffected() == 0 {
		return task.Task{}, task.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *TasksRepo) Delete(ctx context.Context, id string) error {
	if !utils.IsUUID(id) {
		return task.ErrNotFound
	}

	var tag pgconn.CommandTag
	err := r.observe("tasks.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return task.ErrNotFound
	}
	return nil
}

// CountByStatus always reports every status, zero when a project has none in it.
func (r *TasksRepo) CountByStatus(ctx context.Context, projectID string) (task.StatusCounts, error) {
	var rows pgx.Rows
	err := r.observe("tasks.count_by_status", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks WHERE project_id = $1 GROUP BY status`, projectID)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := task.ZeroCounts()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[task.Status(status)] = n
	}
	return counts, rows.Err()
}
