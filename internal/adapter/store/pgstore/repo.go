// Package pgstore persists job definitions in PostgreSQL, selected with
// DB_DRIVER=postgres for deployments that already run one.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dyncron/internal/cronjob"
	"dyncron/internal/shared"
)

const columns = "name, spec, description, handler, active, created_at"

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// Repo implements cronjob.Store over a pgx connection pool.
type Repo struct {
	pool *pgxpool.Pool
}

var _ cronjob.Store = (*Repo)(nil)

// New creates a Repo over the given pool.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// ListActive returns active definitions ordered by name.
func (r *Repo) ListActive(ctx context.Context) ([]cronjob.Definition, error) {
	return r.list(ctx, "SELECT "+columns+" FROM cron_jobs WHERE active ORDER BY name")
}

// ListAll returns every definition ordered by name.
func (r *Repo) ListAll(ctx context.Context) ([]cronjob.Definition, error) {
	return r.list(ctx, "SELECT "+columns+" FROM cron_jobs ORDER BY name")
}

func (r *Repo) list(ctx context.Context, query string) ([]cronjob.Definition, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cron_jobs: %w", err)
	}
	defer rows.Close()

	var defs []cronjob.Definition
	for rows.Next() {
		var def cronjob.Definition
		if err := rows.Scan(&def.Name, &def.Spec, &def.Description, &def.Handler, &def.Active, &def.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cron_jobs row: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cron_jobs rows: %w", err)
	}
	return defs, nil
}

// Get returns the definition with the given name, or shared.ErrNotFound.
func (r *Repo) Get(ctx context.Context, name string) (cronjob.Definition, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+columns+" FROM cron_jobs WHERE name = $1", name)

	var def cronjob.Definition
	err := row.Scan(&def.Name, &def.Spec, &def.Description, &def.Handler, &def.Active, &def.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cronjob.Definition{}, shared.MarkKind(fmt.Errorf("cron job %q", name), shared.KindNotFound)
	}
	if err != nil {
		return cronjob.Definition{}, fmt.Errorf("get cron job %q: %w", name, err)
	}
	return def, nil
}

// Create inserts a new definition. A duplicate name yields shared.ErrConflict.
func (r *Repo) Create(ctx context.Context, def cronjob.Definition) error {
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		"INSERT INTO cron_jobs ("+columns+") VALUES ($1, $2, $3, $4, $5, $6)",
		def.Name, def.Spec, def.Description, def.Handler, def.Active, def.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return shared.MarkKind(fmt.Errorf("cron job %q already exists", def.Name), shared.KindConflict)
		}
		return fmt.Errorf("insert cron job %q: %w", def.Name, err)
	}
	return nil
}

// Update overwrites an existing definition; shared.ErrNotFound for unknown
// names. CreatedAt is never modified.
func (r *Repo) Update(ctx context.Context, def cronjob.Definition) error {
	tag, err := r.pool.Exec(ctx,
		"UPDATE cron_jobs SET spec = $1, description = $2, handler = $3, active = $4 WHERE name = $5",
		def.Spec, def.Description, def.Handler, def.Active, def.Name)
	if err != nil {
		return fmt.Errorf("update cron job %q: %w", def.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MarkKind(fmt.Errorf("cron job %q", def.Name), shared.KindNotFound)
	}
	return nil
}

// Delete removes a definition; shared.ErrNotFound for unknown names.
func (r *Repo) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM cron_jobs WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("delete cron job %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.MarkKind(fmt.Errorf("cron job %q", name), shared.KindNotFound)
	}
	return nil
}

// Count returns total and active definition counts.
func (r *Repo) Count(ctx context.Context) (total, active int64, err error) {
	row := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE active) FROM cron_jobs")
	if err := row.Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count cron_jobs: %w", err)
	}
	return total, active, nil
}
