// Package detector polls the definition store and decides whether the active
// job set differs from the last observed snapshot. It does not own a timer:
// the composition root registers Check as a fixed-delay scheduler job, so the
// wait for the next poll starts only after the previous one completes.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"dyncron/internal/cronjob"
)

// Listener receives the full new active definition set when a change is
// detected. Only one listener is active at a time.
type Listener func(ctx context.Context, defs []cronjob.Definition)

// Detector tracks the last observed active definition set and notifies a
// single listener when the persisted set diverges from it.
type Detector struct {
	source cronjob.Source
	log    *slog.Logger

	mu        sync.Mutex
	lastKnown map[string]cronjob.Definition
	listener  Listener
}

// New creates a Detector over the given definition source.
func New(source cronjob.Source, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		source:    source,
		log:       log.With("component", "detector"),
		lastKnown: make(map[string]cronjob.Definition),
	}
}

// SetChangeListener stores the change listener, replacing any previously set
// one. A nil listener means changes are still detected and the snapshot still
// advances, but nothing is notified.
func (d *Detector) SetChangeListener(l Listener) {
	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()
}

// Check fetches the current active definition set and, when it differs from
// the last observed snapshot, replaces the snapshot and invokes the listener
// with the set in store order. A fetch failure is returned so the scheduler
// logs it and retries on the next tick; the snapshot is left untouched.
//
// The snapshot is replaced before the listener runs: a listener panic does
// not roll it back, so an identical subsequent poll stays silent until the
// next real change.
func (d *Detector) Check(ctx context.Context) error {
	current, err := d.source.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("fetch active job definitions: %w", err)
	}

	d.mu.Lock()
	if !d.hasChangedLocked(current) {
		d.mu.Unlock()
		return nil
	}

	d.lastKnown = make(map[string]cronjob.Definition, len(current))
	for _, def := range current {
		d.lastKnown[def.Name] = def
	}
	listener := d.listener
	d.mu.Unlock()

	d.log.Info("detected changes in job definitions", "count", len(current))

	if listener == nil {
		return nil
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("change listener panicked", "panic", r)
			}
		}()
		listener(ctx, current)
	}()

	return nil
}

// hasChangedLocked reports whether current diverges from the snapshot. Sizes
// are compared first, so a pure removal is caught even though names present
// only in the snapshot are never looked up: with equal counts, any addition
// must pair with a removal and the added name misses the snapshot lookup.
func (d *Detector) hasChangedLocked(current []cronjob.Definition) bool {
	if len(current) != len(d.lastKnown) {
		return true
	}
	for _, def := range current {
		last, ok := d.lastKnown[def.Name]
		if !ok || !def.SameSchedule(last) {
			return true
		}
	}
	return false
}
