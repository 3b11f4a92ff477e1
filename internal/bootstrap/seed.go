// Package bootstrap seeds the job store with a baseline set of definitions on
// startup so a fresh database immediately has something to schedule.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"dyncron/internal/cronjob"
	"dyncron/internal/shared"
)

// baseJobs is seeded in every environment.
var baseJobs = []cronjob.Definition{
	{
		Name:        "system-health-check",
		Spec:        "0 */5 * * * *",
		Description: "Periodic system health verification",
		Handler:     "jobs.healthcheck",
		Active:      true,
	},
	{
		Name:        "database-cleanup",
		Spec:        "0 0 2 * * *",
		Description: "Nightly cleanup of expired records",
		Handler:     "jobs.dbcleanup",
		Active:      true,
	},
	{
		Name:        "log-rotation",
		Spec:        "0 0 0 * * SUN",
		Description: "Weekly log archive rotation",
		Handler:     "jobs.logrotate",
		Active:      true,
	},
	{
		Name:        "backup-task",
		Spec:        "0 30 1 * * *",
		Description: "Nightly database backup",
		Handler:     "jobs.backup",
		Active:      true,
	},
	{
		Name:        "report-generation",
		Spec:        "0 0 8 * * MON-FRI",
		Description: "Morning report generation on weekdays",
		Handler:     "jobs.reports",
		Active:      true,
	},
}

// devJobs is additionally seeded outside production, giving short-period jobs
// to watch the scheduler work.
var devJobs = []cronjob.Definition{
	{
		Name:        "test-every-10-seconds",
		Spec:        "*/10 * * * * *",
		Description: "Fires every ten seconds",
		Handler:     "jobs.noop",
		Active:      true,
	},
	{
		Name:        "test-every-minute",
		Spec:        "0 * * * * *",
		Description: "Fires at the top of every minute",
		Handler:     "jobs.noop",
		Active:      true,
	},
	{
		Name:        "inactive-test-job",
		Spec:        "0 0 * * * *",
		Description: "Present but disabled; must never be scheduled",
		Handler:     "jobs.noop",
		Active:      false,
	},
}

// Seed inserts the baseline definitions, skipping any name that already
// exists, then logs store statistics. Safe to run on every startup.
func Seed(ctx context.Context, store cronjob.Store, dev bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bootstrap")

	jobs := baseJobs
	if dev {
		jobs = append(append([]cronjob.Definition(nil), baseJobs...), devJobs...)
	}

	var created int
	for _, def := range jobs {
		err := store.Create(ctx, def)
		if shared.HasKind(err, shared.KindConflict) {
			log.Debug("seed job already present", "name", def.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed job %q: %w", def.Name, err)
		}
		created++
		log.Info("seeded job", "name", def.Name, "spec", def.Spec, "active", def.Active)
	}

	total, active, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count jobs after seeding: %w", err)
	}
	log.Info("job store statistics",
		"created", created,
		"total", total,
		"active", active,
		"inactive", total-active,
	)
	return nil
}
