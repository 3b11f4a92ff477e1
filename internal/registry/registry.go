// Package registry owns the live mapping from job name to a scheduled
// trigger handle and keeps it synchronized with the persisted definitions by
// full replacement: every refresh tears down all current handles and
// re-creates one per valid active definition.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"dyncron/internal/cronjob"
	"dyncron/internal/detector"
)

// Handle is an opaque, cancellable reference to a live trigger registration.
type Handle interface {
	// Cancel suppresses future firings; interrupt=false lets an in-flight
	// run finish.
	Cancel(interrupt bool)
	IsCancelled() bool
	IsDone() bool
}

// JobFunc is the body of a trigger registration.
type JobFunc func(ctx context.Context) error

// Trigger is the scheduling primitive the registry creates handles with.
type Trigger interface {
	Schedule(spec, name string, job JobFunc) (Handle, error)
}

// ExecFunc executes one firing of a job definition. Errors are swallowed at
// the trigger boundary with a log line and never reach the registry.
type ExecFunc func(ctx context.Context, def cronjob.Definition) error

// ChangeNotifier is the detector-side contract Initialize registers with.
type ChangeNotifier interface {
	SetChangeListener(l detector.Listener)
}

// specParser matches the parser configuration the trigger uses: 6-field
// expressions with a seconds field, descriptors allowed. Keeping them
// aligned means the advisory validation below never disagrees with the
// scheduler it front-runs.
var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Registry maintains exactly one live trigger per valid active definition.
type Registry struct {
	source  cronjob.Source
	trigger Trigger
	exec    ExecFunc
	log     *slog.Logger

	// mu serializes ReplaceAll so the cancel/clear/repopulate phases of two
	// overlapping refreshes never interleave.
	mu     sync.Mutex
	active map[string]Handle
}

// New creates a Registry. When exec is nil, LogExecutor is used.
func New(source cronjob.Source, trigger Trigger, exec ExecFunc, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "registry")
	if exec == nil {
		exec = LogExecutor(log)
	}
	return &Registry{
		source:  source,
		trigger: trigger,
		exec:    exec,
		log:     log,
		active:  make(map[string]Handle),
	}
}

// LogExecutor returns an executor that only logs the firing. Resolution of
// the handler reference is the embedding application's concern.
func LogExecutor(log *slog.Logger) ExecFunc {
	return func(ctx context.Context, def cronjob.Definition) error {
		log.Info("executing job",
			"name", def.Name,
			"handler", def.Handler,
			"description", def.Description,
		)
		return nil
	}
}

// Initialize registers the registry as the detector's change listener and
// performs the initial full load. Runs once at startup; never returns an
// error — load failures are logged and the registry stays empty until the
// first successful poll.
func (r *Registry) Initialize(ctx context.Context, n ChangeNotifier) {
	n.SetChangeListener(func(ctx context.Context, defs []cronjob.Definition) {
		r.ReplaceAll(ctx, defs)
	})
	r.loadAndReplace(ctx)
}

// Refresh fetches the current active set and replaces all schedules. It is
// the operator-triggered reconciliation path outside the poll cadence.
func (r *Registry) Refresh(ctx context.Context) {
	r.log.Info("manual refresh requested")
	r.loadAndReplace(ctx)
}

func (r *Registry) loadAndReplace(ctx context.Context) {
	defs, err := r.source.ListActive(ctx)
	if err != nil {
		r.log.Error("failed to fetch active job definitions", "error", err)
		return
	}
	r.ReplaceAll(ctx, defs)
}

// ReplaceAll cancels every live handle, clears the map, and schedules one
// trigger per definition in list order. A single definition failing
// validation or scheduling is logged and skipped without aborting the batch
// or rolling back definitions already installed in this pass.
func (r *Registry) ReplaceAll(ctx context.Context, defs []cronjob.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.Info("updating schedules", "count", len(defs))

	r.cancelAllLocked()
	for _, def := range defs {
		r.scheduleLocked(def)
	}

	r.log.Info("schedules updated", "active", len(r.active))
}

// cancelAllLocked cancels all handles without interrupting in-flight runs.
// A failing cancellation is logged as a warning and does not stop the
// teardown of the remaining handles.
func (r *Registry) cancelAllLocked() {
	for name, h := range r.active {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Warn("error cancelling schedule", "name", name, "panic", rec)
				}
			}()
			h.Cancel(false)
			r.log.Debug("cancelled schedule", "name", name)
		}()
	}
	r.active = make(map[string]Handle)
}

func (r *Registry) scheduleLocked(def cronjob.Definition) {
	if !r.validSpec(def.Spec) {
		r.log.Error("invalid cron expression for job", "name", def.Name, "spec", def.Spec)
		return
	}

	h, err := r.trigger.Schedule(def.Spec, def.Name, func(ctx context.Context) error {
		return r.exec(ctx, def)
	})
	if err != nil {
		r.log.Error("error scheduling job", "name", def.Name, "spec", def.Spec, "error", err)
		return
	}

	// Overwrite semantics keep this idempotent even though the map was just
	// cleared on the normal path.
	r.active[def.Name] = h
	r.log.Info("scheduled job", "name", def.Name, "spec", def.Spec)
}

// validSpec reports whether spec parses as a 6-field cron expression.
// Advisory only: it front-runs the trigger's own rejection so a bad
// definition is not reported twice with different messages.
func (r *Registry) validSpec(spec string) bool {
	if err := ValidateSpec(spec); err != nil {
		r.log.Warn("cron expression does not parse", "spec", spec, "error", err)
		return false
	}
	return true
}

// ValidateSpec checks spec against the same parser configuration the live
// trigger uses, so admission-time validation and scheduling-time validation
// cannot drift apart.
func ValidateSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return errors.New("cron expression is blank")
	}
	if _, err := specParser.Parse(spec); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return nil
}

// Status returns, per registered name, whether its handle is live: not
// cancelled and not done at the instant of the call. A snapshot, not a
// subscription.
func (r *Registry) Status() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]bool, len(r.active))
	for name, h := range r.active {
		status[name] = !h.IsCancelled() && !h.IsDone()
	}
	return status
}

// Size returns the number of registered schedules.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
