package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/draftclock/go/internal/database"
	"github.com/mcdev12/draftclock/go/internal/draft/gateway"
	"github.com/mcdev12/draftclock/go/internal/draft/orchestrator"
	"github.com/mcdev12/draftclock/go/internal/draft/outbox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	app := &cli.App{
		Name:  "draftclock",
		Usage: "Draft clock and turn progression server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "draftclock.yaml",
				Usage:   "YAML config file",
				EnvVars: []string{"DRAFTCLOCK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "console",
				Usage:   "Log format (console, json)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Aliases: []string{"d"},
				Usage:   "PostgreSQL database URL (defaults to DB_* variables)",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
			},
		},
		Before: func(c *cli.Context) error {
			return setupLogging(c.String("log-level"), c.String("log-format"))
		},
		Commands: []*cli.Command{
			{
				Name:  "api",
				Usage: "Serve the REST and RPC draft API",
				Flags: []cli.Flag{
					portFlag(),
					policyFlag(),
					&cli.BoolFlag{
						Name:  "with-scheduler",
						Usage: "Run the expiration scheduler in this process",
					},
				},
				Action: runAPI,
			},
			{
				Name:   "scheduler",
				Usage:  "Run the expiration scheduler",
				Flags:  []cli.Flag{portFlag(), policyFlag()},
				Action: runScheduler,
			},
			{
				Name:   "gateway",
				Usage:  "Serve viewer WebSocket connections",
				Flags:  []cli.Flag{portFlag()},
				Action: runGateway,
			},
			{
				Name:   "relay",
				Usage:  "Relay the event outbox to JetStream",
				Flags:  []cli.Flag{portFlag()},
				Action: runRelay,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations",
				Action: runMigrate,
			},
			{
				Name:   "all",
				Usage:  "Run every component in one process",
				Flags:  []cli.Flag{portFlag(), policyFlag()},
				Action: runEverything,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("draftclock exited")
	}
}

func portFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "HTTP port",
		EnvVars: []string{"PORT"},
	}
}

func policyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "expiry-policy",
		Usage:   "What happens when a pick clock expires (none, autopick, autopick-random)",
		EnvVars: []string{"EXPIRY_POLICY"},
	}
}

// bootstrap loads config and opens the database.
func bootstrap(c *cli.Context) (*Config, *sql.DB, error) {
	config, err := configFromContext(c)
	if err != nil {
		return nil, nil, err
	}
	db, err := setupDatabase(c.Context, config)
	if err != nil {
		return nil, nil, err
	}
	return config, db, nil
}

func runAPI(c *cli.Context) error {
	config, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	services, err := setupServices(db, config)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	setupHealthCheck(mux)
	registerAPI(mux, services)

	runners := []func(context.Context) error{httpRunner(config, mux)}
	if c.Bool("with-scheduler") {
		orch := mountScheduler(mux, services, config, false)
		defer orch.Close()
		runners = append(runners, orch.Run)
	}
	return runAll(c.Context, runners...)
}

func runScheduler(c *cli.Context) error {
	config, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	services, err := setupServices(db, config)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	setupHealthCheck(mux)
	orch := mountScheduler(mux, services, config, true)
	defer orch.Close()

	return runAll(c.Context, httpRunner(config, mux), orch.Run)
}

func runGateway(c *cli.Context) error {
	config, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	services, err := setupServices(db, config)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	setupHealthCheck(mux)
	gw, err := mountGateway(mux, services, config)
	if err != nil {
		return err
	}

	return runAll(c.Context, httpRunner(config, mux), gw.Start)
}

func runRelay(c *cli.Context) error {
	config, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	mux := http.NewServeMux()
	setupHealthCheck(mux)
	relay, closeRelay, err := mountRelay(mux, db, config)
	if err != nil {
		return err
	}
	defer closeRelay()

	return runAll(c.Context, httpRunner(config, mux), relay)
}

func runMigrate(c *cli.Context) error {
	_, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	return database.RunMigrations(c.Context, db)
}

// runEverything is the local development mode: migrations, API, scheduler,
// relay and gateway behind one port.
func runEverything(c *cli.Context) error {
	config, db, err := bootstrap(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(c.Context, db); err != nil {
		return err
	}

	services, err := setupServices(db, config)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	setupHealthCheck(mux)
	registerAPI(mux, services)

	orch := mountScheduler(mux, services, config, false)
	defer orch.Close()

	relay, closeRelay, err := mountRelay(mux, db, config)
	if err != nil {
		return err
	}
	defer closeRelay()

	gw, err := mountGateway(mux, services, config)
	if err != nil {
		return err
	}

	return runAll(c.Context, httpRunner(config, mux), orch.Run, relay, gw.Start)
}

func httpRunner(config *Config, mux *http.ServeMux) func(context.Context) error {
	srv := setupServer(config, mux)
	return func(ctx context.Context) error {
		return serve(ctx, srv, config.Server.ShutdownGrace)
	}
}

// mountScheduler builds the scheduler and registers it as an observer of the
// local authority. withStream adds the JetStream arming source for processes
// that do not append every timer event themselves.
func mountScheduler(mux *http.ServeMux, services *Services, config *Config, withStream bool) *orchestrator.Orchestrator {
	var orch *orchestrator.Orchestrator
	if withStream {
		nc, js, err := orchestrator.ConnectNATS(config.NATS.URL)
		if err != nil {
			log.Warn().Err(err).Msg("scheduler running without JetStream")
		} else {
			orch = newScheduler(services, config, nc, js)
		}
	}
	if orch == nil {
		orch = newScheduler(services, config, nil, nil)
	}
	services.Authority.Observe(orch.HandleTimerEvent)
	mux.Handle("GET /health/scheduler", orch)

	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "draftclock",
		Subsystem: "scheduler",
		Name:      "armed_timers",
		Help:      "Deadlines currently armed in memory",
	}, func() float64 { return float64(orch.Stats().Armed) }))
	return orch
}

func mountRelay(mux *http.ServeMux, db *sql.DB, config *Config) (func(context.Context) error, func(), error) {
	store := outbox.NewRepository(db)

	publisher, err := outbox.NewJetStreamPublisher(config.publisherConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}
	closePublisher := func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close publisher")
		}
	}

	metrics := outbox.NewCounterMetrics()
	listener, err := outbox.NewListener(store, publisher, metrics, config.listenerConfig())
	if err != nil {
		closePublisher()
		return nil, nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}

	checker := outbox.NewRealtimeHealthChecker(listener, store, publisher.Conn(), config.Relay.HealthThreshold)
	mux.Handle("GET /health/relay", checker)
	prometheus.MustRegister(outbox.NewPrometheusExporter(checker, metrics))

	return listener.Start, closePublisher, nil
}

func mountGateway(mux *http.ServeMux, services *Services, config *Config) (*gateway.Service, error) {
	gwConfig := gateway.DefaultConfig()
	gwConfig.JetStreamConfig.URL = config.NATS.URL

	gw, err := gateway.NewService(gwConfig, services.Authority)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	gw.RegisterRoutes(mux)

	prometheus.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "draftclock",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open viewer WebSocket connections",
		}, func() float64 { return float64(gw.GetStats().TotalConnections) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "draftclock",
			Subsystem: "gateway",
			Name:      "active_drafts",
			Help:      "Drafts with at least one viewer",
		}, func() float64 { return float64(gw.GetStats().ActiveDrafts) }),
	)
	return gw, nil
}
