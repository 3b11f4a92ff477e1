package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dyncron/internal/adapter/httpapi"
	"dyncron/internal/adapter/scheduler"
	"dyncron/internal/adapter/store/pgstore"
	"dyncron/internal/adapter/store/sqlitestore"
	"dyncron/internal/bootstrap"
	"dyncron/internal/config"
	"dyncron/internal/cronjob"
	"dyncron/internal/detector"
	"dyncron/internal/platform/logger"
	"dyncron/internal/platform/pg"
	"dyncron/internal/platform/sqlite"
	"dyncron/internal/registry"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "dyncron",
	})
	return &App{cfg: cfg, log: log}, nil
}

// cronTrigger adapts the scheduler to the registry's trigger contract.
type cronTrigger struct {
	s *scheduler.Scheduler
}

func (t cronTrigger) Schedule(spec, name string, job registry.JobFunc) (registry.Handle, error) {
	h, err := t.s.Schedule(spec, scheduler.JobFunc(job), scheduler.JobOptions{
		Name:          name,
		OverlapPolicy: scheduler.SkipIfRunning,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	a.log.Info("starting", "db_driver", a.cfg.DB.Driver, "poll_interval", a.cfg.Scheduler.PollInterval)
	defer logger.Close(a.log) //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.cfg.Scheduler.Seed {
		if err := bootstrap.Seed(ctx, store, a.cfg.Env == "dev", a.log); err != nil {
			return fmt.Errorf("seed job store: %w", err)
		}
	}

	sched := scheduler.NewWithContext(ctx, scheduler.Config{Logger: a.log})
	reg := registry.New(store, cronTrigger{s: sched}, nil, a.log)
	det := detector.New(store, a.log)

	reg.Initialize(ctx, det)

	sched.AddFixedDelayJob(a.cfg.Scheduler.PollInterval, det.Check, scheduler.JobOptions{
		Name:          "schedule-change-poll",
		OverlapPolicy: scheduler.SkipIfRunning,
	})
	sched.Start()

	api := httpapi.New(store, reg, a.log)
	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: api.Router()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()
	a.log.Info("http server listening", "addr", a.cfg.HTTP.Addr)

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("http shutdown", slog.Any("err", err))
	}
	if err := sched.StopContext(shutdownCtx); err != nil {
		a.log.Error("scheduler shutdown", slog.Any("err", err))
	}
	return nil
}

// openStore opens the configured backing store, applies migrations and
// returns the store plus its close function.
func (a *App) openStore(ctx context.Context) (cronjob.Store, func(), error) {
	switch a.cfg.DB.Driver {
	case "postgres":
		return a.openPostgres(ctx)
	default:
		return a.openSQLite(ctx)
	}
}

func (a *App) openSQLite(ctx context.Context) (cronjob.Store, func(), error) {
	db, err := sqlite.NewDB(ctx, a.cfg.DB.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %q: %w", a.cfg.DB.SQLitePath, err)
	}

	migrations := filepath.Join(a.cfg.DB.MigrationsDir, "sqlite")
	if err := sqlite.ApplyMigrations(a.cfg.DB.SQLitePath, migrations); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("apply sqlite migrations: %w", err)
	}
	a.logMigrationVersion(func() (uint, bool, error) {
		return sqlite.MigrationVersion(a.cfg.DB.SQLitePath, migrations)
	})

	store := sqlitestore.New(sqlite.NewTxRunner(db))
	return store, a.closeFunc("sqlite", db), nil
}

func (a *App) openPostgres(ctx context.Context) (cronjob.Store, func(), error) {
	dsn := a.cfg.DB.PostgresURL

	if err := pg.WaitForDB(ctx, dsn, pg.DefaultHealthCheckOptions()); err != nil {
		return nil, nil, fmt.Errorf("wait for postgres: %w", err)
	}

	migrations := filepath.Join(a.cfg.DB.MigrationsDir, "pg")
	if err := pg.ApplyMigrations(dsn, migrations); err != nil {
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}
	a.logMigrationVersion(func() (uint, bool, error) {
		return pg.MigrationVersion(dsn, migrations)
	})

	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return pgstore.New(pool), func() { pool.Close() }, nil
}

func (a *App) logMigrationVersion(version func() (uint, bool, error)) {
	v, dirty, err := version()
	if err != nil {
		a.log.Warn("migration version unknown", slog.Any("err", err))
		return
	}
	a.log.Info("migrations applied", "version", v, "dirty", dirty)
}

func (a *App) closeFunc(name string, db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			a.log.Error("closing "+name, slog.Any("err", err))
		}
	}
}
