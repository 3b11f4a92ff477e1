// Package cronjob defines the persisted job definition and the store
// contracts the scheduling core depends on.
package cronjob

import (
	"context"
	"time"
)

// Definition is a schedulable job as stored in the definitions table.
type Definition struct {
	// Name is the unique, stable identifier. Renaming a job is modeled as
	// remove plus add.
	Name string `json:"name"`
	// Spec is a 6-field cron expression (seconds first), e.g. "0 */5 * * * *".
	Spec string `json:"spec"`
	// Description is informational only.
	Description string `json:"description"`
	// Handler is an opaque payload reference resolved by the executor;
	// the scheduling core never interprets it.
	Handler string `json:"handler"`
	// Active marks the definition as eligible for scheduling.
	Active bool `json:"active"`
	// CreatedAt is informational only and takes no part in change detection.
	CreatedAt time.Time `json:"created_at"`
}

// SameSchedule reports whether two definitions are equal for change
// detection: name, spec and active flag only. Description, handler and
// created time are deliberately invisible to the detector.
func (d Definition) SameSchedule(o Definition) bool {
	return d.Name == o.Name && d.Spec == o.Spec && d.Active == o.Active
}

// Source is the read-only contract the scheduling core needs from the store.
// Both listings return definitions ordered by name.
type Source interface {
	// ListActive returns the definitions with Active set.
	ListActive(ctx context.Context) ([]Definition, error)
	// ListAll returns every definition regardless of the active flag.
	ListAll(ctx context.Context) ([]Definition, error)
}

// Store is the full repository contract backing the admin surface and the
// seed bootstrap. Get returns shared.ErrNotFound for unknown names; Create
// returns shared.ErrConflict for duplicates.
type Store interface {
	Source

	Get(ctx context.Context, name string) (Definition, error)
	Create(ctx context.Context, def Definition) error
	Update(ctx context.Context, def Definition) error
	Delete(ctx context.Context, name string) error
	// Count returns the total and active definition counts.
	Count(ctx context.Context) (total, active int64, err error)
}
