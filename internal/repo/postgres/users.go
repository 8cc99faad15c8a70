package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/projecthub/internal/domain/date"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/utils"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const userColumns = `
	u.id, u.external_id, u.last_name, u.first_name, u.birth_date, u.email, u.phone, u.document_url,
	u.created_at, u.updated_at,
	COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}') AS roles
`

const userFrom = `
	FROM users u
	LEFT JOIN user_roles r ON r.user_id = u.id
`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var birth pgtype.Date
	var roles []string

	err := row.Scan(
		&u.ID, &u.ExternalID, &u.LastName, &u.FirstName, &birth, &u.Email, &u.Phone, &u.DocumentURL,
		&u.CreatedAt, &u.UpdatedAt, &roles,
	)
	if err != nil {
		return user.User{}, err
	}

	if birth.Valid {
		d := date.New(birth.Time.Year(), birth.Time.Month(), birth.Time.Day())
		u.BirthDate = &d
	}

	u.Roles = make([]user.Role, 0, len(roles))
	for _, role := range roles {
		u.Roles = append(u.Roles, user.Role(role))
	}
	return u, nil
}

func dateArg(d *date.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

// mapUserWriteErr turns constraint violations into domain errors.
func mapUserWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgErr.Code == "23505" && pgErr.ConstraintName == "users_email_key":
		return user.ErrEmailTaken
	case pgErr.Code == "23505" && pgErr.ConstraintName == "users_external_id_key":
		return user.ErrExternalIDTaken
	case pgErr.Code == "23503" && pgErr.ConstraintName == "projects_responsible_fk":
		return user.ErrHasProjects
	}
	return err
}

func insertRoles(ctx context.Context, tx pgx.Tx, userID string, roles []user.Role) error {
	for _, role := range roles {
		_, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, string(role))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (created user.User, err error) {
	err = r.observe("users.create", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}

		defer func() {
			_ = tx.Rollback(ctx)
		}()

		_, err = tx.Exec(ctx, `
			INSERT INTO users (id, external_id, last_name, first_name, birth_date, email, phone, document_url, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, u.ID, u.ExternalID, u.LastName, u.FirstName, dateArg(u.BirthDate), u.Email, u.Phone, u.DocumentURL, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return err
		}

		if err = insertRoles(ctx, tx, u.ID, u.Roles); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		return user.User{}, mapUserWriteErr(err)
	}

	u.Roles = user.NormalizeRoles(u.Roles)
	return u, nil
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User

	err := r.observe(op, func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+` WHERE `+where+` GROUP BY u.id`, arg))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if !utils.IsUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	return r.getOne(ctx, "users.get_by_id", "u.id = $1", id)
}

func (r *UsersRepo) GetByExternalID(ctx context.Context, externalID string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_external_id", "u.external_id = $1", externalID)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", "lower(u.email) = lower($1)", email)
}

func (r *UsersRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.observe("users.exists_by_email", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	})
	return exists, err
}

// Update overwrites every column and replaces the role set.
func (r *UsersRepo) Update(ctx context.Context, u user.User) (updated user.User, err error) {
	err = r.observe("users.update", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}

		defer func() {
			_ = tx.Rollback(ctx)
		}()

		err = tx.QueryRow(ctx, `
			UPDATE users
			SET external_id = $2,
			    last_name = $3,
			    first_name = $4,
			    birth_date = $5,
			    email = $6,
			    phone = $7,
			    document_url = $8,
			    updated_at = $9
			WHERE id = $1
			RETURNING created_at
		`, u.ID, u.ExternalID, u.LastName, u.FirstName, dateArg(u.BirthDate), u.Email, u.Phone, u.DocumentURL, u.UpdatedAt).Scan(&u.CreatedAt)
		if err != nil {
			return err
		}

		if _, err = tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, u.ID); err != nil {
			return err
		}
		if err = insertRoles(ctx, tx, u.ID, u.Roles); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, mapUserWriteErr(err)
	}

	u.Roles = user.NormalizeRoles(u.Roles)
	return u, nil
}

// Delete removes the user; role rows cascade and task assignments are cleared by the schema.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})

	if err != nil {
		return mapUserWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) HasProjects(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.observe("users.has_projects", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE responsible_id = $1)`, id).Scan(&exists)
	})
	return exists, err
}

// ListCursor pages by (created_at, id). A zero afterCreatedAt starts from the beginning.
func (r *UsersRepo) ListCursor(
	ctx context.Context,
	limit int,
	afterCreatedAt time.Time,
	afterID string,
) (items []user.User, nextCursor *string, hasMore bool, err error) {
	q := `SELECT ` + userColumns + userFrom
	args := []any{}

	if !afterCreatedAt.IsZero() {
		q += ` WHERE (u.created_at, u.id) > ($1, $2)`
		args = append(args, afterCreatedAt, afterID)
	}

	q += fmt.Sprintf(` GROUP BY u.id ORDER BY u.created_at ASC, u.id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	var rows pgx.Rows
	err = r.observe("users.list_cursor", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, q, args...)
		return qerr
	})
	if err != nil {
		return nil, nil, false, err
	}
	defer rows.Close()

	out := make([]user.User, 0, limit)
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, nil, false, scanErr
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, nil, false, rows.Err()
	}

	if len(out) > limit {
		hasMore = true
		out = out[:limit]
		last := out[len(out)-1]
		cur, encErr := utils.EncodeUserCursor(last.CreatedAt, last.ID)
		if encErr != nil {
			return nil, nil, false, encErr
		}
		nextCursor = &cur
	}

	return out, nextCursor, hasMore, nil
}
