package timer

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 9, 7, 17, 0, 0, 0, time.UTC)

func event(typ models.TimerEventType, remaining float64, at time.Time) *models.TimerEvent {
	return &models.TimerEvent{
		ID:               uuid.New(),
		DraftID:          uuid.New(),
		Sequence:         1,
		EventType:        typ,
		SecondsRemaining: remaining,
		OriginalDuration: 90,
		CreatedAt:        at,
	}
}

func TestDerive_NoEvents(t *testing.T) {
	st := Derive(nil, epoch, DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusStopped, st.Status)
	assert.Zero(t, st.SecondsRemaining)
	assert.Nil(t, st.Anchor)
}

func TestDerive_DecayingEvents(t *testing.T) {
	for _, typ := range []models.TimerEventType{models.TimerEventStart, models.TimerEventResume} {
		st := Derive(event(typ, 90, epoch), epoch.Add(30*time.Second), DefaultStaleAfter)
		assert.Equal(t, models.TimerStatusRunning, st.Status, typ)
		assert.InDelta(t, 60, st.SecondsRemaining, 1e-9, typ)
	}

	st := Derive(event(models.TimerEventExpire, 0, epoch), epoch.Add(5*time.Second), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusExpired, st.Status)
	assert.InDelta(t, -5, st.SecondsRemaining, 1e-9)
	assert.True(t, st.Overtime())
}

func TestDerive_FrozenEvents(t *testing.T) {
	st := Derive(event(models.TimerEventPause, 42.5, epoch), epoch.Add(time.Hour), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusPaused, st.Status)
	assert.Equal(t, 42.5, st.SecondsRemaining)
	assert.False(t, st.Stale)

	st = Derive(event(models.TimerEventReset, 90, epoch), epoch.Add(time.Hour), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusStopped, st.Status)
	assert.Equal(t, 90.0, st.SecondsRemaining)
}

func TestDerive_OvertimeIsNotAnError(t *testing.T) {
	st := Derive(event(models.TimerEventStart, 90, epoch), epoch.Add(95*time.Second), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusRunning, st.Status)
	assert.InDelta(t, -5, st.SecondsRemaining, 1e-9)
	assert.False(t, st.Stale)
}

func TestDerive_Staleness(t *testing.T) {
	ev := event(models.TimerEventStart, 90, epoch)

	st := Derive(ev, epoch.Add(DefaultStaleAfter), DefaultStaleAfter)
	assert.False(t, st.Stale, "exactly at the threshold is merely old")

	st = Derive(ev, epoch.Add(DefaultStaleAfter+time.Second), DefaultStaleAfter)
	assert.True(t, st.Stale)
	assert.Equal(t, models.TimerStatusExpired, st.Status)
	assert.Less(t, st.SecondsRemaining, 0.0)

	long := event(models.TimerEventStart, 3600, epoch)
	st = Derive(long, epoch.Add(DefaultStaleAfter+time.Second), DefaultStaleAfter)
	assert.False(t, st.Stale, "a long clock with time left is not orphaned")
	assert.Equal(t, models.TimerStatusRunning, st.Status)

	st = Derive(ev, epoch.Add(time.Hour), 0)
	assert.False(t, st.Stale, "zero threshold disables staleness")
}

func TestDerive_ClockSkewClampsElapsed(t *testing.T) {
	st := Derive(event(models.TimerEventStart, 90, epoch), epoch.Add(-2*time.Second), DefaultStaleAfter)
	assert.Equal(t, 90.0, st.SecondsRemaining)
}

func TestDerive_SyncEvents(t *testing.T) {
	running := event(models.TimerEventSync, 50, epoch)
	running.SyncState = models.TimerStatusRunning
	st := Derive(running, epoch.Add(10*time.Second), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusRunning, st.Status)
	assert.InDelta(t, 40, st.SecondsRemaining, 1e-9)

	paused := event(models.TimerEventSync, 50, epoch)
	paused.SyncState = models.TimerStatusPaused
	st = Derive(paused, epoch.Add(10*time.Second), DefaultStaleAfter)
	assert.Equal(t, models.TimerStatusPaused, st.Status)
	assert.Equal(t, 50.0, st.SecondsRemaining)
}

func TestDerive_IsPure(t *testing.T) {
	ev := event(models.TimerEventStart, 90, epoch)
	at := epoch.Add(17 * time.Second)
	assert.Equal(t, Derive(ev, at, DefaultStaleAfter), Derive(ev, at, DefaultStaleAfter))
	assert.Equal(t, 90.0, ev.SecondsRemaining)
}
