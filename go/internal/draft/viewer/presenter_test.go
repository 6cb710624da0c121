package viewer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 9, 1, 19, 0, 0, 0, time.UTC)

type syncFunc func(ctx context.Context, draftID uuid.UUID) (Snapshot, error)

type fakeSyncer struct {
	calls atomic.Int32
	mu    sync.Mutex
	fn    syncFunc
}

func (f *fakeSyncer) answer(fn syncFunc) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeSyncer) Sync(ctx context.Context, draftID uuid.UUID) (Snapshot, error) {
	f.calls.Add(1)
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx, draftID)
}

type presenterFixture struct {
	clock   *clockwork.FakeClock
	syncer  *fakeSyncer
	p       *Presenter
	draftID uuid.UUID

	mu      sync.Mutex
	renders []View
}

func newPresenterFixture(t *testing.T) *presenterFixture {
	t.Helper()
	f := &presenterFixture{
		clock:   clockwork.NewFakeClockAt(epoch),
		syncer:  &fakeSyncer{},
		draftID: uuid.New(),
	}
	f.p = NewPresenter(f.draftID, f.syncer, WithClock(f.clock), WithRenderer(func(v View) {
		f.mu.Lock()
		f.renders = append(f.renders, v)
		f.mu.Unlock()
	}))
	return f
}

func (f *presenterFixture) renderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.renders)
}

// serverAnswers makes the server report a clock of the given state. skew is how far
// the server's clock runs ahead of ours and rtt how long the call takes.
func (f *presenterFixture) serverAnswers(status models.TimerStatus, remaining float64, seq int64, skew, rtt time.Duration) {
	f.syncer.answer(func(context.Context, uuid.UUID) (Snapshot, error) {
		serverTime := f.clock.Now().Add(skew + rtt/2)
		f.clock.Advance(rtt)
		return Snapshot{
			Event: models.TimerEvent{
				DraftID:          f.draftID,
				Sequence:         seq,
				EventType:        models.TimerEventSync,
				SecondsRemaining: remaining,
				OriginalDuration: 90,
				CreatedAt:        serverTime,
				SyncState:        status,
			},
			ServerTime: serverTime,
		}, nil
	})
}

func (f *presenterFixture) event(typ models.TimerEventType, seq int64, remaining float64, at time.Time) models.TimerEvent {
	return models.TimerEvent{
		ID:               uuid.New(),
		DraftID:          f.draftID,
		Sequence:         seq,
		EventType:        typ,
		SecondsRemaining: remaining,
		OriginalDuration: 90,
		TriggeredBy:      models.TriggeredByUser,
		CreatedAt:        at,
	}
}

func TestPresenter_ExtrapolatesBetweenSyncs(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 90, 1, 0, 0)

	require.NoError(t, f.p.SyncNow(context.Background()))
	v := f.p.View()
	assert.True(t, v.Connected)
	assert.Equal(t, models.TimerStatusRunning, v.State)
	assert.InDelta(t, 90, v.SecondsRemaining, 1e-9)

	f.clock.Advance(100 * time.Millisecond)
	f.p.Tick()
	assert.InDelta(t, 89.9, f.p.View().SecondsRemaining, 1e-9)

	f.clock.Advance(30 * time.Second)
	f.p.Tick()
	assert.InDelta(t, 59.9, f.p.View().SecondsRemaining, 1e-9)
	assert.Equal(t, 3, f.renderCount())
}

func TestPresenter_CompensatesForLatency(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 400*time.Millisecond)

	require.NoError(t, f.p.SyncNow(context.Background()))
	// The answer is half a round trip old by the time it arrives.
	assert.InDelta(t, 59.8, f.p.View().SecondsRemaining, 1e-9)
}

func TestPresenter_CorrectsClockSkew(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 5*time.Second, 200*time.Millisecond)
	require.NoError(t, f.p.SyncNow(context.Background()))
	assert.InDelta(t, 59.9, f.p.View().SecondsRemaining, 1e-9)

	// An event stamped two seconds ago on the server's clock, which is five seconds
	// ahead of ours.
	f.clock.Advance(3 * time.Second)
	serverNow := f.clock.Now().Add(5 * time.Second)
	require.True(t, f.p.Ingest(f.event(models.TimerEventStart, 2, 90, serverNow.Add(-2*time.Second))))
	assert.InDelta(t, 88, f.p.View().SecondsRemaining, 1e-9)
}

func TestPresenter_IngestBeforeFirstSync(t *testing.T) {
	f := newPresenterFixture(t)

	require.True(t, f.p.Ingest(f.event(models.TimerEventStart, 1, 90, epoch.Add(-1500*time.Millisecond))))
	v := f.p.View()
	assert.InDelta(t, 88.5, v.SecondsRemaining, 1e-9)
	assert.False(t, v.Connected)

	// No sync yet means no extrapolation.
	f.clock.Advance(time.Second)
	f.p.Tick()
	assert.InDelta(t, 88.5, f.p.View().SecondsRemaining, 1e-9)
}

func TestPresenter_SnapsOnlyBeyondThreshold(t *testing.T) {
	f := newPresenterFixture(t)
	ctx := context.Background()
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))

	f.clock.Advance(10 * time.Second)
	f.serverAnswers(models.TimerStatusRunning, 49.5, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))
	assert.InDelta(t, 50, f.p.View().SecondsRemaining, 1e-9, "small drift keeps the local countdown")
	assert.Zero(t, f.p.Stats().Snaps)

	f.clock.Advance(10 * time.Second)
	f.serverAnswers(models.TimerStatusRunning, 38, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))
	assert.InDelta(t, 38, f.p.View().SecondsRemaining, 1e-9)
	assert.Equal(t, 1, f.p.Stats().Snaps)
	assert.Equal(t, 3, f.p.Stats().Syncs)
}

func TestPresenter_SnapsOnMissedEvent(t *testing.T) {
	f := newPresenterFixture(t)
	ctx := context.Background()
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))

	f.clock.Advance(5 * time.Second)
	f.serverAnswers(models.TimerStatusPaused, 55, 2, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))
	v := f.p.View()
	assert.Equal(t, models.TimerStatusPaused, v.State)
	assert.InDelta(t, 55, v.SecondsRemaining, 1e-9)

	f.clock.Advance(5 * time.Second)
	f.p.Tick()
	assert.InDelta(t, 55, f.p.View().SecondsRemaining, 1e-9, "a paused clock does not decay")
}

func TestPresenter_DropsStaleAndRepeatedEvents(t *testing.T) {
	f := newPresenterFixture(t)
	latest := f.event(models.TimerEventStart, 2, 90, epoch)

	require.True(t, f.p.Ingest(latest))
	assert.False(t, f.p.Ingest(latest))
	assert.False(t, f.p.Ingest(f.event(models.TimerEventPause, 1, 30, epoch.Add(-time.Second))))

	other := latest
	other.DraftID = uuid.New()
	other.CreatedAt = epoch.Add(time.Second)
	assert.False(t, f.p.Ingest(other))

	assert.Equal(t, 3, f.p.Stats().Dropped)
	assert.Equal(t, models.TimerStatusRunning, f.p.View().State)
}

func TestPresenter_EventOvertakesSync(t *testing.T) {
	f := newPresenterFixture(t)
	ctx := context.Background()
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))

	f.syncer.answer(func(context.Context, uuid.UUID) (Snapshot, error) {
		answeredAt := f.clock.Now()
		f.clock.Advance(time.Second)
		f.p.Ingest(f.event(models.TimerEventPause, 2, 59, f.clock.Now()))
		return Snapshot{
			Event:      models.TimerEvent{DraftID: f.draftID, Sequence: 1, EventType: models.TimerEventSync, SecondsRemaining: 60, CreatedAt: answeredAt, SyncState: models.TimerStatusRunning},
			ServerTime: answeredAt,
		}, nil
	})
	require.NoError(t, f.p.SyncNow(ctx))

	v := f.p.View()
	assert.Equal(t, models.TimerStatusPaused, v.State)
	assert.InDelta(t, 59, v.SecondsRemaining, 1e-9)
}

func TestPresenter_LaterSequenceBeatsFresherSyncStamp(t *testing.T) {
	f := newPresenterFixture(t)
	// The gateway's clock runs 200ms ahead of the API host that writes the log.
	f.serverAnswers(models.TimerStatusStopped, 90, 1, 200*time.Millisecond, 0)
	require.NoError(t, f.p.SyncNow(context.Background()))
	require.Equal(t, models.TimerStatusStopped, f.p.View().State)

	require.True(t, f.p.Ingest(f.event(models.TimerEventStart, 2, 90, epoch.Add(100*time.Millisecond))))

	f.clock.Advance(5 * time.Second)
	f.p.Tick()
	v := f.p.View()
	assert.Equal(t, models.TimerStatusRunning, v.State)
	assert.InDelta(t, 84.9, v.SecondsRemaining, 1e-9)
	assert.Zero(t, f.p.Stats().Dropped)
}

func TestPresenter_InFlightSyncDoesNotRewindSequence(t *testing.T) {
	f := newPresenterFixture(t)
	ctx := context.Background()
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))

	f.clock.Advance(2 * time.Second)
	f.syncer.answer(func(context.Context, uuid.UUID) (Snapshot, error) {
		answeredAt := f.clock.Now()
		// The pause was stamped by a host whose clock lags the gateway's.
		f.p.Ingest(f.event(models.TimerEventPause, 2, 58, answeredAt.Add(-time.Second)))
		return Snapshot{
			Event:      models.TimerEvent{DraftID: f.draftID, Sequence: 1, EventType: models.TimerEventSync, SecondsRemaining: 58, CreatedAt: answeredAt, SyncState: models.TimerStatusRunning},
			ServerTime: answeredAt,
		}, nil
	})
	require.NoError(t, f.p.SyncNow(ctx))

	f.clock.Advance(3 * time.Second)
	f.p.Tick()
	v := f.p.View()
	assert.Equal(t, models.TimerStatusPaused, v.State)
	assert.InDelta(t, 58, v.SecondsRemaining, 1e-9)
	assert.Zero(t, f.p.Stats().Snaps)
}

func TestPresenter_DisconnectedFreezes(t *testing.T) {
	f := newPresenterFixture(t)
	ctx := context.Background()
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))

	f.clock.Advance(time.Second)
	f.p.Tick()
	f.p.TransportDown()
	frozen := f.p.View()
	assert.False(t, frozen.Connected)
	assert.InDelta(t, 59, frozen.SecondsRemaining, 1e-9)

	f.clock.Advance(5 * time.Second)
	f.p.Tick()
	assert.Equal(t, frozen, f.p.View())

	f.syncer.answer(func(context.Context, uuid.UUID) (Snapshot, error) {
		return Snapshot{}, errors.New("connection refused")
	})
	require.Error(t, f.p.SyncNow(ctx))
	assert.Equal(t, 1, f.p.Stats().Failures)
	assert.False(t, f.p.View().Connected)

	f.serverAnswers(models.TimerStatusRunning, 54, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(ctx))
	v := f.p.View()
	assert.True(t, v.Connected)
	assert.InDelta(t, 54, v.SecondsRemaining, 1e-9)
}

func TestPresenter_Overtime(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 5, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(context.Background()))

	f.clock.Advance(7 * time.Second)
	f.p.Tick()
	v := f.p.View()
	assert.True(t, v.Overtime)
	assert.InDelta(t, -2, v.SecondsRemaining, 1e-9)
}

func TestPresenter_VisibilityForcesSync(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 60, 1, 0, 0)
	require.NoError(t, f.p.SyncNow(context.Background()))

	f.p.SetVisible(false)
	before := f.renderCount()
	f.clock.Advance(time.Second)
	f.p.Tick()
	assert.Equal(t, before, f.renderCount(), "hidden presenters do not render")

	f.p.SetVisible(true)
	f.p.TransportUp()
	assert.Len(t, f.p.syncReq, 1, "requests coalesce")
}

func TestPresenter_Run(t *testing.T) {
	f := newPresenterFixture(t)
	f.serverAnswers(models.TimerStatusRunning, 90, 1, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.p.Run(ctx) }()

	require.Eventually(t, func() bool { return f.p.Stats().Syncs == 1 }, time.Second, 5*time.Millisecond)

	// Periodic sync while running.
	require.Eventually(t, func() bool {
		f.clock.Advance(time.Second)
		return f.syncer.calls.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// A failed sync shows the indicator and is retried.
	f.syncer.answer(func(context.Context, uuid.UUID) (Snapshot, error) { return Snapshot{}, errors.New("timeout") })
	f.p.RequestSync()
	require.Eventually(t, func() bool { return !f.p.View().Connected }, time.Second, 5*time.Millisecond)

	f.serverAnswers(models.TimerStatusRunning, 30, 2, 0, 0)
	require.Eventually(t, func() bool {
		f.clock.Advance(500 * time.Millisecond)
		return f.p.View().Connected
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
