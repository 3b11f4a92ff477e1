package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	DB struct {
		Driver        string `validate:"required,oneof=sqlite postgres"`
		SQLitePath    string
		PostgresURL   string
		MigrationsDir string `validate:"required"`
	}
	Scheduler struct {
		PollInterval time.Duration `validate:"required,min=1s"`
		Seed         bool
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/dyncron.log")
	c.DB.Driver = strings.ToLower(getenv("DB_DRIVER", "sqlite"))
	c.DB.SQLitePath = getenv("SQLITE_PATH", "data/dyncron.db")
	c.DB.PostgresURL = os.Getenv("DATABASE_URL")
	c.DB.MigrationsDir = getenv("MIGRATIONS_DIR", "migrations")

	poll := getenv("POLL_INTERVAL", "10s")
	d, err := time.ParseDuration(poll)
	if err != nil {
		return Config{}, fmt.Errorf("POLL_INTERVAL %q: %w", poll, err)
	}
	c.Scheduler.PollInterval = d

	seed := getenv("SEED", "true")
	c.Scheduler.Seed, err = strconv.ParseBool(seed)
	if err != nil {
		return Config{}, fmt.Errorf("SEED %q: %w", seed, err)
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.DB.Driver == "postgres" && c.DB.PostgresURL == "" {
		return Config{}, errors.New("DATABASE_URL required when DB_DRIVER is postgres")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
