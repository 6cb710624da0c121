package timer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

const resetRetries = 3

// ScheduleAction tells the event log what to do with the draft's durable expiry.
type ScheduleAction int

const (
	ScheduleKeep ScheduleAction = iota
	ScheduleArm
	ScheduleDisarm
)

// AppendRequest is one atomic write to the timer event log.
type AppendRequest struct {
	Event    models.TimerEvent
	Schedule ScheduleAction
	FireAt   time.Time
}

// EventLog is the durable, per-draft ordered store of timer events.
// Append must fail with models.ErrConflict when Event.Sequence is already taken.
type EventLog interface {
	Latest(ctx context.Context, draftID uuid.UUID) (*models.TimerEvent, error)
	Append(ctx context.Context, req AppendRequest) (*models.TimerEvent, error)
}

// Observer is notified of every event after it has been durably appended.
type Observer func(ev models.TimerEvent)

// StartRequest starts the clock for a pick.
type StartRequest struct {
	DraftID     uuid.UUID
	PickID      *uuid.UUID
	Seconds     int
	Override    bool // replace a clock that is already running
	TriggeredBy models.TriggeredBy
}

// ResetRequest discards the current clock and prepares one for the next pick.
type ResetRequest struct {
	DraftID     uuid.UUID
	PickID      *uuid.UUID
	Seconds     int
	AutoStart   bool
	TriggeredBy models.TriggeredBy
}

// Authority owns the clock state transitions of every draft.
type Authority struct {
	events     EventLog
	clock      clockwork.Clock
	staleAfter time.Duration

	observersMu sync.RWMutex
	observers   []Observer
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock sets the clock used for event timestamps and derivation.
func WithClock(c clockwork.Clock) Option {
	return func(a *Authority) { a.clock = c }
}

// WithStaleAfter overrides the staleness threshold.
func WithStaleAfter(d time.Duration) Option {
	return func(a *Authority) { a.staleAfter = d }
}

// NewAuthority creates a clock authority over an event log.
func NewAuthority(events EventLog, opts ...Option) *Authority {
	a := &Authority{
		events:     events,
		clock:      clockwork.NewRealClock(),
		staleAfter: DefaultStaleAfter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe registers an observer for appended events.
func (a *Authority) Observe(o Observer) {
	a.observersMu.Lock()
	defer a.observersMu.Unlock()
	a.observers = append(a.observers, o)
}

// Clock returns the authority's clock.
func (a *Authority) Clock() clockwork.Clock {
	return a.clock
}

// CurrentState derives the clock state as of now without writing anything.
func (a *Authority) CurrentState(ctx context.Context, draftID uuid.UUID) (State, error) {
	latest, err := a.latest(ctx, draftID)
	if err != nil {
		return State{}, err
	}
	st := Derive(latest, a.clock.Now(), a.staleAfter)
	st.DraftID = draftID
	return st, nil
}

// ReconciledState is CurrentState, except that a stale clock is first closed
// with a synthetic expire so the answer reflects the log.
func (a *Authority) ReconciledState(ctx context.Context, draftID uuid.UUID) (State, error) {
	st, err := a.CurrentState(ctx, draftID)
	if err != nil || !st.Stale {
		return st, err
	}
	if _, err := a.Reconcile(ctx, draftID); err != nil {
		log.Warn().Err(err).Str("draft_id", draftID.String()).Msg("failed to reconcile stale timer")
		return st, nil
	}
	return a.CurrentState(ctx, draftID)
}

// Start emits a start event and arms the expiry for the full duration.
func (a *Authority) Start(ctx context.Context, req StartRequest) (*models.TimerEvent, error) {
	if req.Seconds <= 0 {
		return nil, fmt.Errorf("%w: seconds must be positive", models.ErrInvalidArgument)
	}

	latest, err := a.latest(ctx, req.DraftID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	cur := Derive(latest, now, a.staleAfter)
	if cur.Status == models.TimerStatusRunning && !req.Override {
		return nil, ErrTimerRunningFor(cur.PickID, req.PickID)
	}

	ev := models.TimerEvent{
		DraftID:          req.DraftID,
		EventType:        models.TimerEventStart,
		SecondsRemaining: float64(req.Seconds),
		OriginalDuration: req.Seconds,
		PickID:           req.PickID,
		TriggeredBy:      triggeredBy(req.TriggeredBy),
		CreatedAt:        now,
	}
	return a.append(ctx, latest, ev, ScheduleArm)
}

// Pause freezes a running clock at its derived remaining time.
func (a *Authority) Pause(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error) {
	latest, err := a.latest(ctx, draftID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	cur := Derive(latest, now, a.staleAfter)
	if cur.Status != models.TimerStatusRunning {
		return nil, models.ErrTimerNotRunning
	}

	ev := models.TimerEvent{
		DraftID:          draftID,
		EventType:        models.TimerEventPause,
		SecondsRemaining: cur.SecondsRemaining,
		OriginalDuration: latest.OriginalDuration,
		PickID:           latest.PickID,
		TriggeredBy:      triggeredBy(by),
		CreatedAt:        now,
	}
	return a.append(ctx, latest, ev, ScheduleDisarm)
}

// Resume continues a paused clock from its frozen value.
func (a *Authority) Resume(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error) {
	latest, err := a.latest(ctx, draftID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	cur := Derive(latest, now, a.staleAfter)
	if cur.Status != models.TimerStatusPaused {
		return nil, models.ErrTimerNotPaused
	}

	ev := models.TimerEvent{
		DraftID:          draftID,
		EventType:        models.TimerEventResume,
		SecondsRemaining: latest.SecondsRemaining,
		OriginalDuration: latest.OriginalDuration,
		PickID:           latest.PickID,
		TriggeredBy:      triggeredBy(by),
		CreatedAt:        now,
	}
	return a.append(ctx, latest, ev, ScheduleArm)
}

// Reset unconditionally replaces the clock with a fresh one for req.PickID.
// With AutoStart the reset is followed by a start, which is what arms the expiry.
func (a *Authority) Reset(ctx context.Context, req ResetRequest) ([]models.TimerEvent, error) {
	if req.Seconds < 0 {
		return nil, fmt.Errorf("%w: seconds must not be negative", models.ErrInvalidArgument)
	}

	var reset *models.TimerEvent
	var err error
	for attempt := 0; attempt < resetRetries; attempt++ {
		var latest *models.TimerEvent
		latest, err = a.latest(ctx, req.DraftID)
		if err != nil {
			return nil, err
		}
		ev := models.TimerEvent{
			DraftID:          req.DraftID,
			EventType:        models.TimerEventReset,
			SecondsRemaining: float64(req.Seconds),
			OriginalDuration: req.Seconds,
			PickID:           req.PickID,
			TriggeredBy:      triggeredBy(req.TriggeredBy),
			CreatedAt:        a.clock.Now(),
		}
		reset, err = a.append(ctx, latest, ev, ScheduleDisarm)
		if !errors.Is(err, models.ErrConflict) {
			break
		}
		log.Debug().Str("draft_id", req.DraftID.String()).Int("attempt", attempt+1).Msg("reset lost append race, retrying")
	}
	if err != nil {
		return nil, err
	}

	out := []models.TimerEvent{*reset}
	if !req.AutoStart || req.Seconds == 0 {
		return out, nil
	}

	start := models.TimerEvent{
		DraftID:          req.DraftID,
		EventType:        models.TimerEventStart,
		SecondsRemaining: float64(req.Seconds),
		OriginalDuration: req.Seconds,
		PickID:           req.PickID,
		TriggeredBy:      triggeredBy(req.TriggeredBy),
		CreatedAt:        a.clock.Now(),
	}
	started, err := a.append(ctx, reset, start, ScheduleArm)
	if err != nil {
		return out, fmt.Errorf("start after reset: %w", err)
	}
	return append(out, *started), nil
}

// Expire closes a running clock whose armed generation is still current and whose
// remaining time has reached zero. It is safe to call more than once per generation.
func (a *Authority) Expire(ctx context.Context, draftID uuid.UUID, armedSequence int64) (*models.TimerEvent, error) {
	latest, err := a.latest(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Sequence != armedSequence {
		return nil, ErrSuperseded
	}
	if latest.EventType != models.TimerEventStart && latest.EventType != models.TimerEventResume {
		return nil, ErrSuperseded
	}

	now := a.clock.Now()
	cur := Derive(latest, now, 0)
	if cur.SecondsRemaining > 0 {
		return nil, &NotDueError{Remaining: secondsToDuration(cur.SecondsRemaining)}
	}

	ev := models.TimerEvent{
		DraftID:          draftID,
		EventType:        models.TimerEventExpire,
		SecondsRemaining: cur.SecondsRemaining,
		OriginalDuration: latest.OriginalDuration,
		PickID:           latest.PickID,
		TriggeredBy:      models.TriggeredBySystem,
		Metadata:         json.RawMessage(`{"reason":"deadline"}`),
		CreatedAt:        now,
	}
	expired, err := a.append(ctx, latest, ev, ScheduleDisarm)
	if errors.Is(err, models.ErrConflict) {
		return nil, ErrSuperseded
	}
	return expired, err
}

// Reconcile emits a synthetic expire for a stale clock. It returns nil when the
// clock is not stale or another writer got there first.
func (a *Authority) Reconcile(ctx context.Context, draftID uuid.UUID) (*models.TimerEvent, error) {
	latest, err := a.latest(ctx, draftID)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	cur := Derive(latest, now, a.staleAfter)
	if !cur.Stale {
		return nil, nil
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Int64("sequence", latest.Sequence).
		Float64("seconds_remaining", cur.SecondsRemaining).
		Msg("reconciling stale timer")

	ev := models.TimerEvent{
		DraftID:          draftID,
		EventType:        models.TimerEventExpire,
		SecondsRemaining: cur.SecondsRemaining,
		OriginalDuration: latest.OriginalDuration,
		PickID:           latest.PickID,
		TriggeredBy:      models.TriggeredBySystem,
		Metadata:         json.RawMessage(`{"reason":"stale"}`),
		CreatedAt:        now,
	}
	expired, err := a.append(ctx, latest, ev, ScheduleDisarm)
	if errors.Is(err, models.ErrConflict) {
		return nil, nil
	}
	return expired, err
}

// SyncEvent builds a non-persisted sync event carrying the current derived state.
func (a *Authority) SyncEvent(ctx context.Context, draftID uuid.UUID) (models.TimerEvent, error) {
	st, err := a.CurrentState(ctx, draftID)
	if err != nil {
		return models.TimerEvent{}, err
	}
	ev := models.TimerEvent{
		ID:               uuid.New(),
		DraftID:          draftID,
		EventType:        models.TimerEventSync,
		SecondsRemaining: st.SecondsRemaining,
		OriginalDuration: st.OriginalDuration,
		PickID:           st.PickID,
		TriggeredBy:      models.TriggeredBySystem,
		CreatedAt:        st.AsOf,
		SyncState:        st.Status,
	}
	if st.Anchor != nil {
		ev.Sequence = st.Anchor.Sequence
	}
	return ev, nil
}

func (a *Authority) latest(ctx context.Context, draftID uuid.UUID) (*models.TimerEvent, error) {
	ev, err := a.events.Latest(ctx, draftID)
	if err != nil {
		return nil, upstream("query latest timer event", err)
	}
	return ev, nil
}

// append writes ev as the successor of prev and notifies observers on success.
func (a *Authority) append(ctx context.Context, prev *models.TimerEvent, ev models.TimerEvent, action ScheduleAction) (*models.TimerEvent, error) {
	ev.ID = uuid.New()
	ev.Sequence = 1
	if prev != nil {
		ev.Sequence = prev.Sequence + 1
		if ev.CreatedAt.Before(prev.CreatedAt) {
			ev.CreatedAt = prev.CreatedAt
		}
	}

	req := AppendRequest{Event: ev, Schedule: action}
	if action == ScheduleArm {
		req.FireAt = FireAt(ev)
	}

	stored, err := a.events.Append(ctx, req)
	if err != nil {
		return nil, upstream(fmt.Sprintf("append %s event", ev.EventType), err)
	}

	log.Info().
		Str("draft_id", stored.DraftID.String()).
		Str("event_type", string(stored.EventType)).
		Int64("sequence", stored.Sequence).
		Float64("seconds_remaining", stored.SecondsRemaining).
		Msg("timer event appended")

	a.notify(*stored)
	return stored, nil
}

func (a *Authority) notify(ev models.TimerEvent) {
	a.observersMu.RLock()
	observers := append([]Observer(nil), a.observers...)
	a.observersMu.RUnlock()

	for _, o := range observers {
		o(ev)
	}
}

// ErrTimerRunningFor describes a start rejected because a clock is already running.
func ErrTimerRunningFor(running, requested *uuid.UUID) error {
	if running != nil && requested != nil && *running != *requested {
		return fmt.Errorf("%w for pick %s", models.ErrTimerRunning, running)
	}
	return models.ErrTimerRunning
}

// upstream keeps taxonomy errors intact and classifies everything else as an
// unavailable event log.
func upstream(op string, err error) error {
	for _, kind := range []error{models.ErrConflict, models.ErrInvalidArgument, models.ErrNotFound} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrUpstreamUnavailable, err)
}

func triggeredBy(by models.TriggeredBy) models.TriggeredBy {
	if by == "" {
		return models.TriggeredByUser
	}
	return by
}

// FireAt is the instant a running event's remaining time reaches zero.
func FireAt(ev models.TimerEvent) time.Time {
	return ev.CreatedAt.Add(secondsToDuration(math.Max(ev.SecondsRemaining, 0)))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
