package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/geocoder89/projecthub/internal/domain/project"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewProjectsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ProjectsRepo {
	return &ProjectsRepo{pool: pool, prom: prom}
}

func (r *ProjectsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const projectSelect = `
	SELECT p.id, p.name, p.description, p.start_date, p.end_date, p.responsible_id, p.created_at, p.updated_at,
	       u.last_name, u.first_name, u.email
	FROM projects p
	JOIN users u ON u.id = p.responsible_id
`

func scanProject(row pgx.Row) (project.Project, error) {
	var p project.Project
	var start, end pgtype.Date
	var brief user.Brief

	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &start, &end, &p.ResponsibleID, &p.CreatedAt, &p.UpdatedAt,
		&brief.LastName, &brief.FirstName, &brief.Email,
	)
	if err != nil {
		return project.Project{}, err
	}

	p.StartDate = date.New(start.Time.Year(), start.Time.Month(), start.Time.Day())
	if end.Valid {
		d := date.New(end.Time.Year(), end.Time.Month(), end.Time.Day())
		p.EndDate = &d
	}
	brief.ID = p.ResponsibleID
	p.Responsible = &brief

	return p, nil
}

func mapProjectWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "projects_responsible_fk" {
		return user.ErrNotFound
	}
	return err
}

func (r *ProjectsRepo) Create(ctx context.Context, p project.Project) (project.Project, error) {
	err := r.observe("projects.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO projects (id, name, description, start_date, end_date, responsible_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, p.ID, p.Name, p.Description, p.StartDate.Time, dateArg(p.EndDate), p.ResponsibleID, p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return project.Project{}, mapProjectWriteErr(err)
	}

	return r.GetByID(ctx, p.ID)
}

func (r *ProjectsRepo) GetByID(ctx context.Context, id string) (project.Project, error) {
	if !utils.IsUUID(id) {
		return project.Project{}, project.ErrNotFound
	}

	var p project.Project
	err := r.observe("projects.get_by_id", func() error {
		var err error
		p, err = scanProject(r.pool.QueryRow(ctx, projectSelect+` WHERE p.id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return project.Project{}, project.ErrNotFound
		}
		return project.Project{}, err
	}
	return p, nil
}

func (r *ProjectsRepo) list(ctx context.Context, op, where string, args ...any) ([]project.Project, error) {
	var rows pgx.Rows
	err := r.observe(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, projectSelect+where+` ORDER BY p.start_date ASC, p.id ASC`, args...)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]project.Project, 0)
	for rows.Next() {
		p, scanErr := scanProject(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *ProjectsRepo) List(ctx context.Context) ([]project.Project, error) {
	return r.list(ctx, "projects.list", "")
}

func (r *ProjectsRepo) ListByResponsible(ctx context.Context, userID string) ([]project.Project, error) {
	return r.list(ctx, "projects.list_by_responsible", ` WHERE p.responsible_id = $1`, userID)
}

func (r *ProjectsRepo) Update(ctx context.Context, p project.Project) (project.Project, error) {
	var tag pgconn.CommandTag

	err := r.observe("projects.update", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE projects
			SET name = $2,
			    description = $3,
			    start_date = $4,
			    end_date = $5,
			    responsible_id = $6,
			    updated_at = NOW()
			WHERE id = $1
		`, p.ID, p.Name, p.Description, p.StartDate.Time, dateArg(p.EndDate), p.ResponsibleID)
		return err
	})
	if err != nil {
		return project.Project{}, mapProjectWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return project.Project{}, project.ErrNotFound
	}

	return r.GetByID(ctx, p.ID)
}

// Delete cascades to the project's tasks.
func (r *ProjectsRepo) Delete(ctx context.Context, id string) error {
	if !utils.IsUUID(id) {
		return project.ErrNotFound
	}

	var tag pgconn.CommandTag
	err := r.observe("projects.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return project.ErrNotFound
	}
	return nil
}
