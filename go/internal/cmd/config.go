package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcdev12/draftclock/go/internal/dbconfig"
	"github.com/mcdev12/draftclock/go/internal/draft/orchestrator"
	"github.com/mcdev12/draftclock/go/internal/draft/outbox"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           string        `yaml:"port"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	} `yaml:"server"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`

	Draft struct {
		ExpiryPolicy string        `yaml:"expiry_policy"`
		StaleAfter   time.Duration `yaml:"stale_after"`
	} `yaml:"draft"`

	Scheduler struct {
		Workers      int           `yaml:"workers"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"scheduler"`

	Relay struct {
		NotifyChannel    string        `yaml:"notify_channel"`
		FallbackInterval time.Duration `yaml:"fallback_interval"`
		HealthThreshold  time.Duration `yaml:"health_threshold"`
	} `yaml:"relay"`

	Database dbconfig.Config `yaml:"-"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Server.ShutdownGrace = 10 * time.Second
	cfg.NATS.URL = nats.DefaultURL
	cfg.Draft.ExpiryPolicy = "none"
	cfg.Draft.StaleAfter = timer.DefaultStaleAfter
	cfg.Scheduler.Workers = orchestrator.DefaultConfig().Workers
	cfg.Scheduler.PollInterval = orchestrator.DefaultConfig().PollInterval
	cfg.Relay.NotifyChannel = outbox.DefaultListenerConfig().NotifyChannel
	cfg.Relay.FallbackInterval = outbox.DefaultListenerConfig().FallbackInterval
	cfg.Relay.HealthThreshold = 5 * time.Minute
	return cfg
}

// loadConfig reads the YAML file at path over the defaults. A missing file is
// not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()
	config.Database = dbconfig.NewConfigFromEnv()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// configFromContext loads the config file and applies flag overrides.
func configFromContext(c *cli.Context) (*Config, error) {
	config, err := loadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("database-url") {
		config.Database.URL = c.String("database-url")
	}
	if c.IsSet("nats-url") {
		config.NATS.URL = c.String("nats-url")
	}
	if c.IsSet("port") {
		config.Server.Port = c.String("port")
	}
	if c.IsSet("expiry-policy") {
		config.Draft.ExpiryPolicy = c.String("expiry-policy")
	}
	return config, nil
}

func (c *Config) schedulerConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	if c.Scheduler.Workers > 0 {
		cfg.Workers = c.Scheduler.Workers
	}
	if c.Scheduler.PollInterval > 0 {
		cfg.PollInterval = c.Scheduler.PollInterval
	}
	return cfg
}

func (c *Config) listenerConfig() outbox.ListenerConfig {
	cfg := outbox.DefaultListenerConfig()
	cfg.DatabaseURL = c.Database.DSN()
	if c.Relay.NotifyChannel != "" {
		cfg.NotifyChannel = c.Relay.NotifyChannel
	}
	if c.Relay.FallbackInterval > 0 {
		cfg.FallbackInterval = c.Relay.FallbackInterval
	}
	return cfg
}

func (c *Config) publisherConfig() outbox.JetStreamConfig {
	cfg := outbox.DefaultJetStreamConfig()
	cfg.URL = c.NATS.URL
	return cfg
}

// setupLogging configures the global zerolog logger.
func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	switch format {
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	case "json", "":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}
