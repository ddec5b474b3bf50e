// Package config loads studio-scheduler settings from STUDIO_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
)

const prefix = "STUDIO"

// Notification drivers.
const (
	NotifyNone = "none"
	NotifyNATS = "nats"
	NotifyAMQP = "amqp"
)

// Config captures environment driven configuration values for the studio service.
type Config struct {
	HTTPPort        int           `envconfig:"HTTP_PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN"`
	// Timezone interprets naive datetimes; "Local" uses the process zone.
	Timezone string `envconfig:"TIMEZONE" default:"Local"`

	SlotHorizonDays int `envconfig:"SLOT_HORIZON_DAYS" default:"14"`
	SlotMaxResults  int `envconfig:"SLOT_MAX_RESULTS" default:"50"`

	CreditConcurrency int `envconfig:"CREDIT_CONCURRENCY" default:"8"`
	CreditMaxAttempts int `envconfig:"CREDIT_MAX_ATTEMPTS" default:"3"`

	PropagationCron        string `envconfig:"PROPAGATION_CRON" default:"0 3 25 * *"`
	PropagationCronEnabled bool   `envconfig:"PROPAGATION_CRON_ENABLED" default:"false"`

	// RedisURL is a redis:// URL; empty keeps propagation locks in process.
	RedisURL string        `envconfig:"REDIS_URL"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"2m"`

	NotifyDriver string `envconfig:"NOTIFY_DRIVER" default:"none"`
	NATSURL      string `envconfig:"NATS_URL"`
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"studio.events"`

	location *time.Location
}

// Location returns the zone resolved from Timezone.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Load parses configuration values from the current process environment.
//
// Defaults come from the struct tags. Values that fail to parse or violate a
// rule are reported together, as are values required by the selected drivers.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		var parseErr *envconfig.ParseError
		if errors.As(err, &parseErr) {
			return Config{}, fmt.Errorf("invalid environment variable values: %s", parseErr.KeyName)
		}
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)
	key := func(name string) string { return prefix + "_" + name }

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, key("HTTP_PORT"))
	}
	if cfg.ShutdownTimeout <= 0 {
		invalid = append(invalid, key("SHUTDOWN_TIMEOUT"))
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.DBDSN = strings.TrimSpace(cfg.DBDSN)
	switch cfg.DBDriver {
	case "sqlite":
		if cfg.DBDSN == "" {
			cfg.DBDSN = "studio.db"
		}
	case "pgx":
		if cfg.DBDSN == "" {
			missing = append(missing, key("DB_DSN"))
		}
	default:
		invalid = append(invalid, key("DB_DRIVER"))
	}

	loc, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone))
	if err != nil {
		invalid = append(invalid, key("TIMEZONE"))
	} else {
		cfg.location = loc
	}

	if cfg.SlotHorizonDays <= 0 || cfg.SlotHorizonDays > 31 {
		invalid = append(invalid, key("SLOT_HORIZON_DAYS"))
	}
	if cfg.SlotMaxResults <= 0 {
		invalid = append(invalid, key("SLOT_MAX_RESULTS"))
	}
	if cfg.CreditConcurrency <= 0 {
		invalid = append(invalid, key("CREDIT_CONCURRENCY"))
	}
	if cfg.CreditMaxAttempts <= 0 {
		invalid = append(invalid, key("CREDIT_MAX_ATTEMPTS"))
	}
	if cfg.LockTTL <= 0 {
		invalid = append(invalid, key("LOCK_TTL"))
	}

	if cfg.PropagationCronEnabled {
		if _, err := cron.ParseStandard(cfg.PropagationCron); err != nil {
			invalid = append(invalid, key("PROPAGATION_CRON"))
		}
	}

	cfg.NotifyDriver = strings.ToLower(strings.TrimSpace(cfg.NotifyDriver))
	switch cfg.NotifyDriver {
	case NotifyNone:
	case NotifyNATS:
		if strings.TrimSpace(cfg.NATSURL) == "" {
			missing = append(missing, key("NATS_URL"))
		}
	case NotifyAMQP:
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			missing = append(missing, key("AMQP_URL"))
		}
		if strings.TrimSpace(cfg.AMQPExchange) == "" {
			missing = append(missing, key("AMQP_EXCHANGE"))
		}
	default:
		invalid = append(invalid, key("NOTIFY_DRIVER"))
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
