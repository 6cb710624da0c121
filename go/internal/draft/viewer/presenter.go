package viewer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// View is what a viewer renders.
type View struct {
	DraftID          uuid.UUID          `json:"draft_id"`
	State            models.TimerStatus `json:"state"`
	SecondsRemaining float64            `json:"seconds_remaining"`
	PickID           *uuid.UUID         `json:"pick_id,omitempty"`
	Overtime         bool               `json:"overtime"`
	Connected        bool               `json:"connected"`
}

// Config tunes the presenter's timing.
type Config struct {
	SyncInterval  time.Duration // periodic sync while the clock runs
	TickInterval  time.Duration // local extrapolation
	SyncTimeout   time.Duration
	RetryInterval time.Duration // after a failed sync
	SnapThreshold time.Duration // drift beyond this replaces the local anchor
}

func DefaultConfig() Config {
	return Config{
		SyncInterval:  10 * time.Second,
		TickInterval:  100 * time.Millisecond,
		SyncTimeout:   3 * time.Second,
		RetryInterval: 2 * time.Second,
		SnapThreshold: time.Second,
	}
}

// PresenterStats counts sync outcomes.
type PresenterStats struct {
	Syncs    int
	Snaps    int
	Failures int
	Dropped  int // stale or repeated events
}

type Option func(*Presenter)

func WithClock(c clockwork.Clock) Option {
	return func(p *Presenter) { p.clock = c }
}

func WithConfig(cfg Config) Option {
	return func(p *Presenter) { p.cfg = cfg }
}

// WithRenderer is called with every new view. It runs on the presenter's goroutines
// and must not block.
func WithRenderer(fn func(View)) Option {
	return func(p *Presenter) { p.render = fn }
}

// Presenter keeps one viewer's countdown. It extrapolates locally from the last
// authoritative event with the same derivation the server uses, and corrects
// itself with periodic syncs.
type Presenter struct {
	draftID uuid.UUID
	syncer  Syncer
	clock   clockwork.Clock
	cfg     Config
	render  func(View)

	mu        sync.Mutex
	anchor    *models.TimerEvent
	offset    time.Duration // server clock minus local clock
	synced    bool
	connected bool
	visible   bool
	view      View
	stats     PresenterStats

	syncReq chan struct{}
}

func NewPresenter(draftID uuid.UUID, syncer Syncer, opts ...Option) *Presenter {
	p := &Presenter{
		draftID: draftID,
		syncer:  syncer,
		clock:   clockwork.NewRealClock(),
		cfg:     DefaultConfig(),
		render:  func(View) {},
		visible: true,
		view:    View{DraftID: draftID, State: models.TimerStatusStopped},
		syncReq: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Presenter) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

func (p *Presenter) Stats() PresenterStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Ingest replaces the anchor with a broadcast event and renders at once. Events
// that are not newer than the anchor are dropped, so redelivery is harmless.
func (p *Presenter) Ingest(ev models.TimerEvent) bool {
	p.mu.Lock()
	if ev.DraftID != p.draftID || (p.anchor != nil && !ev.NewerThan(*p.anchor)) {
		p.stats.Dropped++
		p.mu.Unlock()
		return false
	}
	p.anchor = &ev
	v := p.recompute()
	p.mu.Unlock()

	p.render(v)
	return true
}

// Tick extrapolates the countdown. A disconnected or hidden presenter keeps its
// last view.
func (p *Presenter) Tick() {
	p.mu.Lock()
	if !p.connected || !p.visible || p.anchor == nil {
		p.mu.Unlock()
		return
	}
	v := p.recompute()
	p.mu.Unlock()

	p.render(v)
}

// SetVisible records tab visibility. Becoming visible forces a sync because ticks
// may not have run while hidden.
func (p *Presenter) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
	if visible {
		p.RequestSync()
	}
}

// TransportUp forces a sync after the event stream (re)connects.
func (p *Presenter) TransportUp() {
	p.RequestSync()
}

// TransportDown shows the disconnected indicator and freezes the countdown.
func (p *Presenter) TransportDown() {
	p.mu.Lock()
	p.connected = false
	p.view.Connected = false
	v := p.view
	p.mu.Unlock()

	p.render(v)
}

// RequestSync asks Run for a sync as soon as possible.
func (p *Presenter) RequestSync() {
	select {
	case p.syncReq <- struct{}{}:
	default:
	}
}

// SyncNow performs one sync on the caller's goroutine.
func (p *Presenter) SyncNow(ctx context.Context) error {
	return p.apply(p.fetch(ctx))
}

type syncResult struct {
	snap     Snapshot
	sent     time.Time
	received time.Time
	err      error
}

func (p *Presenter) fetch(ctx context.Context) syncResult {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SyncTimeout)
	defer cancel()

	sent := p.clock.Now()
	snap, err := p.syncer.Sync(ctx, p.draftID)
	return syncResult{snap: snap, sent: sent, received: p.clock.Now(), err: err}
}

func (p *Presenter) apply(res syncResult) error {
	p.mu.Lock()
	if res.err != nil {
		p.stats.Failures++
		p.connected = false
		p.view.Connected = false
		v := p.view
		p.mu.Unlock()

		log.Warn().Err(res.err).Str("draft_id", p.draftID.String()).Msg("clock sync failed")
		p.render(v)
		return res.err
	}

	p.stats.Syncs++
	p.connected = true

	// The server answered about halfway through the round trip.
	rtt := res.received.Sub(res.sent)
	offset := res.snap.ServerTime.Add(rtt / 2).Sub(res.received)
	ev := res.snap.Event
	ev.DraftID = p.draftID

	first := !p.synced
	p.synced = true
	switch {
	case p.anchor != nil && p.anchor.NewerThan(ev):
		// An event arrived while the sync was in flight.
		if first {
			p.offset = offset
		}
	case first, p.anchor == nil, p.drifted(ev, offset, res.received):
		if !first && p.anchor != nil {
			p.stats.Snaps++
		}
		p.anchor = &ev
		p.offset = offset
	}
	v := p.recompute()
	p.mu.Unlock()

	p.render(v)
	return nil
}

// drifted reports whether the synced clock disagrees with the local one enough to
// replace it. Caller holds mu.
func (p *Presenter) drifted(ev models.TimerEvent, offset time.Duration, at time.Time) bool {
	local := timer.Derive(p.anchor, at.Add(p.offset), 0)
	remote := timer.Derive(&ev, at.Add(offset), 0)
	if local.Status != remote.Status || !samePick(local.PickID, remote.PickID) || p.anchor.Sequence != ev.Sequence {
		return true
	}
	return math.Abs(local.SecondsRemaining-remote.SecondsRemaining) > p.cfg.SnapThreshold.Seconds()
}

// recompute derives the view from the anchor as of the estimated server time.
// Caller holds mu.
func (p *Presenter) recompute() View {
	v := View{DraftID: p.draftID, State: models.TimerStatusStopped, Connected: p.connected}
	if p.anchor != nil {
		st := timer.Derive(p.anchor, p.clock.Now().Add(p.offset), 0)
		v.State = st.Status
		v.SecondsRemaining = st.SecondsRemaining
		v.PickID = st.PickID
		v.Overtime = st.Overtime()
	}
	p.view = v
	return v
}

func (p *Presenter) wantsSync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.connected || p.view.State == models.TimerStatusRunning
}

// Run syncs immediately, then ticks and syncs on schedule until ctx is done. Syncs
// run off the tick path so a slow server never stalls the countdown.
func (p *Presenter) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()
	next := p.clock.NewTimer(p.cfg.SyncInterval)
	defer next.Stop()

	results := make(chan syncResult, 1)
	inFlight, pending := false, false
	start := func() {
		if inFlight {
			pending = true
			return
		}
		inFlight = true
		go func() { results <- p.fetch(ctx) }()
	}

	start()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			p.Tick()
		case <-p.syncReq:
			start()
		case <-next.Chan():
			if p.wantsSync() {
				start()
			} else {
				next.Reset(p.cfg.SyncInterval)
			}
		case res := <-results:
			inFlight = false
			err := p.apply(res)
			if pending {
				pending = false
				start()
				continue
			}
			delay := p.cfg.SyncInterval
			if err != nil {
				delay = p.cfg.RetryInterval
			}
			next.Reset(delay)
		}
	}
}

func samePick(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
