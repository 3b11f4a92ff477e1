// Package scheduler wraps github.com/robfig/cron/v3 into the trigger
// primitive the schedule registry works with, plus fixed-delay jobs for
// polling loops.
//
// Cron registrations use 6-field expressions (seconds first) and return a
// *Handle: an opaque, cancellable reference with Cancel(interrupt),
// IsCancelled and IsDone. Cancellation is non-interrupting by default — an
// in-flight run finishes, only future firings are suppressed.
//
// Fixed-delay jobs wait the full interval after a run completes before
// starting the next one, so a slow run stretches the effective period
// instead of piling up firings.
//
// Basic usage:
//
//	s := New(Config{Logger: logger})
//
//	h, err := s.Schedule("0 */5 * * * *", func(ctx context.Context) error {
//		// periodic work
//		return nil
//	}, JobOptions{Name: "health-check"})
//
//	s.AddFixedDelayJob(10*time.Second, pollFunc, JobOptions{Name: "poller"})
//
//	s.Start()
//	defer s.Stop()
//
//	h.Cancel(false) // suppress future firings
//
// The scheduler recovers panics, logs job errors without propagating them,
// supports per-job timeouts and overlap policies, and shuts down gracefully
// (StopContext bounds the wait with a deadline).
package scheduler
