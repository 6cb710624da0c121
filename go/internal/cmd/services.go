package main

import (
	"database/sql"
	"fmt"

	"github.com/mcdev12/draftclock/go/internal/auth"
	draftlifecycle "github.com/mcdev12/draftclock/go/internal/draft/draft"
	"github.com/mcdev12/draftclock/go/internal/draft/orchestrator"
	"github.com/mcdev12/draftclock/go/internal/draft/outbox"
	"github.com/mcdev12/draftclock/go/internal/draft/pick"
	"github.com/mcdev12/draftclock/go/internal/draft/rpc"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Services struct {
	Outbox    *outbox.Repository
	Timers    *timer.Repository
	Authority *timer.Authority
	Picks     *pick.App
	Drafts    *draftlifecycle.App

	TimerService *timer.Service
	PickService  *pick.Service
	DraftService *draftlifecycle.Service
	RPC          *rpc.Service
}

func setupServices(database *sql.DB, config *Config) (*Services, error) {
	// Database layer → Repository layer → App layer → Service layer

	authz := auth.NewRepository(database)
	outboxRepo := outbox.NewRepository(database)

	// Clock authority
	timerRepo := timer.NewRepository(database, outboxRepo)
	authority := timer.NewAuthority(timerRepo, timer.WithStaleAfter(config.Draft.StaleAfter))
	timerService := timer.NewService(authority)

	// Picks
	policy, err := pick.PolicyByName(config.Draft.ExpiryPolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure expiry policy: %w", err)
	}
	pickRepo := pick.NewRepository(database, outboxRepo)
	pickApp := pick.NewApp(pickRepo, authz, authority, pick.WithPolicy(policy), pick.WithClock(authority.Clock()))
	pickService := pick.NewService(pickApp)

	// Draft lifecycle
	draftRepo := draftlifecycle.NewRepository(database, outboxRepo)
	draftApp := draftlifecycle.NewApp(draftRepo, authz, authority, authority.Clock())
	draftService := draftlifecycle.NewService(draftApp)

	return &Services{
		Outbox:       outboxRepo,
		Timers:       timerRepo,
		Authority:    authority,
		Picks:        pickApp,
		Drafts:       draftApp,
		TimerService: timerService,
		PickService:  pickService,
		DraftService: draftService,
		RPC:          rpc.NewService(authority, pickApp),
	}, nil
}

// newScheduler builds the expiration scheduler. With nc set it also consumes
// timer events from JetStream; otherwise it relies on the in-process observer,
// the schedule table and polling.
func newScheduler(services *Services, config *Config, nc *nats.Conn, js jetstream.JetStream) *orchestrator.Orchestrator {
	opts := []orchestrator.Option{
		orchestrator.WithConfig(config.schedulerConfig()),
		orchestrator.WithClock(services.Authority.Clock()),
	}
	if nc != nil {
		opts = append(opts, orchestrator.WithJetStream(nc, js))
	}
	return orchestrator.NewOrchestrator(
		services.Authority,
		services.Timers,
		orchestrator.ExpiryHookFunc(services.Picks.OnExpire),
		opts...,
	)
}
