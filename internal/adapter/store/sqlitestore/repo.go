// Package sqlitestore persists job definitions in the embedded SQLite
// database. It is the default store.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dyncron/internal/cronjob"
	"dyncron/internal/platform/sqlite"
	"dyncron/internal/shared"
)

const columns = "name, spec, description, handler, active, created_at"

// Repo implements cronjob.Store over a SQLite database.
type Repo struct {
	runner *sqlite.TxRunner
}

var _ cronjob.Store = (*Repo)(nil)

// New creates a Repo over the given transaction runner.
func New(runner *sqlite.TxRunner) *Repo {
	return &Repo{runner: runner}
}

// ListActive returns active definitions ordered by name.
func (r *Repo) ListActive(ctx context.Context) ([]cronjob.Definition, error) {
	return r.list(ctx, "SELECT "+columns+" FROM cron_jobs WHERE active = 1 ORDER BY name")
}

// ListAll returns every definition ordered by name.
func (r *Repo) ListAll(ctx context.Context) ([]cronjob.Definition, error) {
	return r.list(ctx, "SELECT "+columns+" FROM cron_jobs ORDER BY name")
}

func (r *Repo) list(ctx context.Context, query string) ([]cronjob.Definition, error) {
	rows, err := r.runner.GetQuerier(ctx).QueryContext(ctx, query)
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
	row := r.runner.GetQuerier(ctx).QueryRowContext(ctx,
		"SELECT "+columns+" FROM cron_jobs WHERE name = ?", name)

	var def cronjob.Definition
	err := row.Scan(&def.Name, &def.Spec, &def.Description, &def.Handler, &def.Active, &def.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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

	return r.runner.WithinTx(ctx, func(ctx context.Context) error {
		_, err := r.runner.GetQuerier(ctx).ExecContext(ctx,
			"INSERT INTO cron_jobs ("+columns+") VALUES (?, ?, ?, ?, ?, ?)",
			def.Name, def.Spec, def.Description, def.Handler, def.Active, def.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return shared.MarkKind(fmt.Errorf("cron job %q already exists", def.Name), shared.KindConflict)
			}
			return fmt.Errorf("insert cron job %q: %w", def.Name, err)
		}
		return nil
	})
}

// Update overwrites an existing definition; shared.ErrNotFound for unknown
// names. CreatedAt is never modified.
func (r *Repo) Update(ctx context.Context, def cronjob.Definition) error {
	return r.runner.WithinTx(ctx, func(ctx context.Context) error {
		res, err := r.runner.GetQuerier(ctx).ExecContext(ctx,
			"UPDATE cron_jobs SET spec = ?, description = ?, handler = ?, active = ? WHERE name = ?",
			def.Spec, def.Description, def.Handler, def.Active, def.Name)
		if err != nil {
			return fmt.Errorf("update cron job %q: %w", def.Name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update cron job %q: %w", def.Name, err)
		}
		if affected == 0 {
			return shared.MarkKind(fmt.Errorf("cron job %q", def.Name), shared.KindNotFound)
		}
		return nil
	})
}

// Delete removes a definition; shared.ErrNotFound for unknown names.
func (r *Repo) Delete(ctx context.Context, name string) error {
	return r.runner.WithinTx(ctx, func(ctx context.Context) error {
		res, err := r.runner.GetQuerier(ctx).ExecContext(ctx,
			"DELETE FROM cron_jobs WHERE name = ?", name)
		if err != nil {
			return fmt.Errorf("delete cron job %q: %w", name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete cron job %q: %w", name, err)
		}
		if affected == 0 {
			return shared.MarkKind(fmt.Errorf("cron job %q", name), shared.KindNotFound)
		}
		return nil
	})
}

// Count returns total and active definition counts.
func (r *Repo) Count(ctx context.Context) (total, active int64, err error) {
	row := r.runner.GetQuerier(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(active), 0) FROM cron_jobs")
	if err := row.Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count cron_jobs: %w", err)
	}
	return total, active, nil
}
