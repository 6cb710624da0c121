package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

/*
EXPIRATION SCHEDULER

Every start or resume arms a durable schedule row (timer_schedules) in the same
transaction as the event. This process keeps one in-memory timer per draft for
the newest armed generation and, when it fires, asks the clock authority to
close that generation with an expire event.

Arming sources:
1. Startup recovery from timer_schedules
2. In-process authority observer (API and scheduler in one binary)
3. JetStream consumer on draft.events.timer.> (split deployment)
4. Poll fallback over due schedules

Firing the same generation twice is harmless: the authority only appends an
expire when the armed sequence is still the latest event.
*/

const (
	defaultWorkers      = 10
	defaultPollInterval = 5 * time.Second
	defaultPollBatch    = 100
	defaultRetryDelay   = time.Second

	consumerName          = "draft-expiry-scheduler"
	consumerMaxDeliver    = 5
	consumerAckWait       = 30 * time.Second
	consumerMaxAckPending = 1000

	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second

	eventChannelBufferSize = 256
)

// Expirer closes an armed generation. timer.Authority implements it.
type Expirer interface {
	Expire(ctx context.Context, draftID uuid.UUID, armedSequence int64) (*models.TimerEvent, error)
}

// ScheduleStore reads the durable schedule table.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]models.TimerSchedule, error)
	DueSchedules(ctx context.Context, before time.Time, limit int) ([]models.TimerSchedule, error)
}

// ExpiryHook runs once for every expire this scheduler appends.
type ExpiryHook interface {
	OnExpire(ctx context.Context, ev models.TimerEvent) error
}

// ExpiryHookFunc adapts a function to ExpiryHook.
type ExpiryHookFunc func(ctx context.Context, ev models.TimerEvent) error

func (f ExpiryHookFunc) OnExpire(ctx context.Context, ev models.TimerEvent) error { return f(ctx, ev) }

// Config tunes the scheduler.
type Config struct {
	Workers      int
	PollInterval time.Duration
	PollBatch    int
	RetryDelay   time.Duration

	StreamName    string
	SubjectPrefix string
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Workers:      defaultWorkers,
		PollInterval: defaultPollInterval,
		PollBatch:    defaultPollBatch,
		RetryDelay:   defaultRetryDelay,

		StreamName:    "DRAFT_EVENTS",
		SubjectPrefix: "draft.events",
	}
}

// work identifies one generation to fire.
type work struct {
	draftID  uuid.UUID
	sequence int64
}

// armedTimer is the in-memory timer for a draft's newest armed generation.
type armedTimer struct {
	sequence int64
	fireAt   time.Time
	timer    clockwork.Timer
	cancel   chan struct{}
}

// Stats is a snapshot for health reporting.
type Stats struct {
	Running  bool      `json:"running"`
	Armed    int       `json:"armed"`
	Fired    uint64    `json:"fired"`
	LastFire time.Time `json:"last_fire"`
}

type Orchestrator struct {
	expirer    Expirer
	schedules  ScheduleStore
	hook       ExpiryHook
	clock      clockwork.Clock
	cfg        Config
	instanceID string

	activeTimersMu sync.Mutex
	activeTimers   map[uuid.UUID]*armedTimer

	workCh     chan work
	inFlightMu sync.Mutex
	inFlight   map[work]bool

	// JetStream, optional
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer

	statsMu  sync.Mutex
	running  bool
	fired    uint64
	lastFire time.Time

	done     chan struct{}
	doneOnce sync.Once
}

type Option func(*Orchestrator)

func WithClock(c clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithJetStream makes Run consume timer events from the stream as an extra arming source.
func WithJetStream(nc *nats.Conn, js jetstream.JetStream) Option {
	return func(o *Orchestrator) {
		o.nc = nc
		o.js = js
	}
}

func NewOrchestrator(expirer Expirer, schedules ScheduleStore, hook ExpiryHook, opts ...Option) *Orchestrator {
	ensureMetrics()
	o := &Orchestrator{
		expirer:      expirer,
		schedules:    schedules,
		hook:         hook,
		clock:        clockwork.NewRealClock(),
		cfg:          DefaultConfig(),
		instanceID:   uuid.New().String()[:8],
		activeTimers: make(map[uuid.UUID]*armedTimer),
		inFlight:     make(map[work]bool),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.Workers <= 0 {
		o.cfg.Workers = defaultWorkers
	}
	if o.cfg.PollBatch <= 0 {
		o.cfg.PollBatch = defaultPollBatch
	}
	if o.cfg.RetryDelay <= 0 {
		o.cfg.RetryDelay = defaultRetryDelay
	}
	o.workCh = make(chan work, o.cfg.Workers*2)
	return o
}

func (o *Orchestrator) Stats() Stats {
	o.activeTimersMu.Lock()
	armed := len(o.activeTimers)
	o.activeTimersMu.Unlock()

	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return Stats{Running: o.running, Armed: armed, Fired: o.fired, LastFire: o.lastFire}
}

func (o *Orchestrator) setRunning(v bool) {
	o.statsMu.Lock()
	o.running = v
	o.statsMu.Unlock()
}

func (o *Orchestrator) recordFire() {
	o.statsMu.Lock()
	o.fired++
	o.lastFire = o.clock.Now()
	o.statsMu.Unlock()
}
