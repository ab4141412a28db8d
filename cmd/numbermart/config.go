package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/numbermart/internal/logger"
	"github.com/nkiryanov/numbermart/internal/service/reconcile"
	"github.com/nkiryanov/numbermart/internal/service/sweeper"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultProviderAddr = "http://localhost:3000"
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the numbermart service will be run
	ListenAddr string

	// SMS gateway address; provider <id> is served under <address>/<id> unless its policy says otherwise
	ProviderAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Some internal parts (like signing JWT tokens) uses symmetric encryption, so this key is used for that purpose
	SecretKey string

	// Shared secret of payment and sms webhooks. Webhooks are disabled when empty.
	WebhookSecret string

	// Environment
	Environment string

	// Background sync of open orders
	SweepInterval time.Duration
	SweepWorkers  int

	// Cron spec of the periodic reconciliation scan
	ReconcileSchedule string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:          defaultLoggingLevel,
		ListenAddr:        defaultListenAddr,
		ProviderAddr:      defaultProviderAddr,
		Environment:       defaultEnvironment,
		SweepInterval:     sweeper.DefaultInterval,
		SweepWorkers:      sweeper.DefaultWorkers,
		ReconcileSchedule: reconcile.DefaultSchedule,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"PROVIDER_ADDRESS":   setString(&c.ProviderAddr),
		"WEBHOOK_SECRET":     setString(&c.WebhookSecret),
		"ENVIRONMENT":        setString(&c.Environment),
		"SWEEP_INTERVAL":     setDuration(&c.SweepInterval),
		"SWEEP_WORKERS":      setInt(&c.SweepWorkers),
		"RECONCILE_SCHEDULE": setString(&c.ReconcileSchedule),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("numbermart", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.ProviderAddr, "provider", "p", c.ProviderAddr, "SMS gateway address")
	fs.StringVarP(&c.WebhookSecret, "webhook-secret", "w", c.WebhookSecret, "Shared secret of webhooks")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (development, production)")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Interval between syncs of open orders")
	fs.IntVar(&c.SweepWorkers, "sweep-workers", c.SweepWorkers, "Number of workers syncing open orders")
	fs.StringVar(&c.ReconcileSchedule, "reconcile-schedule", c.ReconcileSchedule, "Cron spec of the reconciliation scan")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	switch {
	case c.SecretKey == "":
		return errors.New("secret key is required")
	case c.DatabaseDSN == "":
		return errors.New("database dsn is required")
	}
	return nil
}
