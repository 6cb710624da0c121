package gateway

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timerFrame(draftID uuid.UUID, seq int64, at time.Time) *DraftEvent {
	return &DraftEvent{ID: uuid.NewString(), DraftID: draftID.String(), Type: EventTypeTimer, Sequence: seq, Timestamp: at}
}

func receive(t *testing.T, sub *Subscription) *DraftEvent {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %s", ev.ID)
	default:
	}
}

func TestHub_FansOutPerDraft(t *testing.T) {
	h := NewHub()
	draftA, draftB := uuid.New(), uuid.New()
	a1, a2, b := h.Subscribe(draftA, 4), h.Subscribe(draftA, 4), h.Subscribe(draftB, 4)

	ev := timerFrame(draftA, 1, time.Now())
	require.True(t, h.Publish(draftA, ev))

	assert.Same(t, ev, receive(t, a1))
	assert.Same(t, ev, receive(t, a2))
	assertEmpty(t, b)
	assert.Equal(t, 3, h.Stats().Subscribers)
}

func TestHub_DropsStaleTimerFrames(t *testing.T) {
	h := NewHub()
	draftID := uuid.New()
	sub := h.Subscribe(draftID, 4)
	now := time.Now()

	require.True(t, h.Publish(draftID, timerFrame(draftID, 2, now)))
	receive(t, sub)

	assert.False(t, h.Publish(draftID, timerFrame(draftID, 1, now.Add(time.Second))))
	assertEmpty(t, sub)

	// A later generation wins even when its writer's clock reads earlier.
	assert.True(t, h.Publish(draftID, timerFrame(draftID, 3, now.Add(-time.Second))))
	receive(t, sub)

	// Equal sequences are not stale.
	assert.True(t, h.Publish(draftID, timerFrame(draftID, 3, now)))
	receive(t, sub)

	// Non-timer frames are not ordered against the clock.
	pick := &DraftEvent{ID: uuid.NewString(), Type: EventTypePickMade, Timestamp: now.Add(-time.Hour)}
	assert.True(t, h.Publish(draftID, pick))
	receive(t, sub)

	assert.Equal(t, uint64(1), h.Stats().Stale)
}

func TestHub_DropsRedeliveries(t *testing.T) {
	h := NewHub()
	draftID := uuid.New()
	sub := h.Subscribe(draftID, 4)

	ev := &DraftEvent{ID: "evt-1", Type: EventTypeDraftPaused, Timestamp: time.Now()}
	require.True(t, h.Publish(draftID, ev))
	assert.False(t, h.Publish(draftID, ev))
	receive(t, sub)
	assertEmpty(t, sub)

	h.Forget(draftID)
	assert.True(t, h.Publish(draftID, ev), "a forgotten draft starts clean")
}

func TestHub_RemembersBoundedHistory(t *testing.T) {
	h := NewHub()
	draftID := uuid.New()
	first := &DraftEvent{ID: "first", Type: EventTypePickMade}
	h.Publish(draftID, first)
	for i := 0; i < recentIDsPerDraft; i++ {
		h.Publish(draftID, &DraftEvent{ID: uuid.NewString(), Type: EventTypePickMade})
	}
	assert.True(t, h.Publish(draftID, first))
}

func TestHub_OverflowDoesNotBlock(t *testing.T) {
	h := NewHub()
	draftID := uuid.New()
	slow := h.Subscribe(draftID, 1)

	now := time.Now()
	h.Publish(draftID, timerFrame(draftID, 1, now))
	h.Publish(draftID, timerFrame(draftID, 2, now.Add(time.Millisecond)))

	receive(t, slow)
	assertEmpty(t, slow)
	assert.Equal(t, uint64(1), h.Stats().Overflow)
}

func TestSubscription_Close(t *testing.T) {
	h := NewHub()
	draftID := uuid.New()
	sub := h.Subscribe(draftID, 0)

	sub.Close()
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)
	assert.Zero(t, h.Stats().Subscribers)
	assert.True(t, h.Publish(draftID, timerFrame(draftID, 1, time.Now())))
}
