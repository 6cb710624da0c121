package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	events []OutboxEvent
	sent   map[uuid.UUID]bool
}

func newFakeStore(evs ...OutboxEvent) *fakeStore {
	return &fakeStore{events: evs, sent: map[uuid.UUID]bool{}}
}

func (s *fakeStore) FetchByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id && !s.sent[id] {
			ev := ev
			return &ev, nil
		}
	}
	return nil, ErrEventNotPending
}

func (s *fakeStore) FetchUnsent(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, ev := range s.events {
		if !s.sent[ev.ID] && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []OutboxEvent
	failures  map[uuid.UUID]int
}

func (p *recordingPublisher) Publish(_ context.Context, ev OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[ev.ID] > 0 {
		p.failures[ev.ID]--
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, ev)
	return nil
}

func outboxEvent(eventType string) OutboxEvent {
	return OutboxEvent{
		ID:        uuid.New(),
		DraftID:   uuid.New(),
		EventType: eventType,
		Payload:   json.RawMessage(`{"k":"v"}`),
		CreatedAt: time.Now(),
	}
}

func testListener(store Store, pub Publisher, metrics MetricsCollector) *Listener {
	cfg := DefaultListenerConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	return newListener(store, nil, pub, metrics, cfg)
}

func TestListener_HandleNotification(t *testing.T) {
	ev := outboxEvent(events.TypeTimerEvent)
	store := newFakeStore(ev)
	pub := &recordingPublisher{}
	l := testListener(store, pub, nil)

	require.NoError(t, l.handleNotification(context.Background(), ev.ID.String()))
	require.Len(t, pub.published, 1)
	assert.Equal(t, ev.ID, pub.published[0].ID)
	assert.True(t, store.sent[ev.ID])

	processed, last := l.Stats()
	assert.Equal(t, uint64(1), processed)
	assert.False(t, last.IsZero())

	// A duplicate notification is not an error and does not republish.
	require.NoError(t, l.handleNotification(context.Background(), ev.ID.String()))
	assert.Len(t, pub.published, 1)
}

func TestListener_HandleNotificationBadPayload(t *testing.T) {
	l := testListener(newFakeStore(), &recordingPublisher{}, nil)
	require.Error(t, l.handleNotification(context.Background(), "not-a-uuid"))
}

func TestListener_RetriesThenSucceeds(t *testing.T) {
	ev := outboxEvent(events.TypePickMade)
	store := newFakeStore(ev)
	pub := &recordingPublisher{failures: map[uuid.UUID]int{ev.ID: 2}}
	metrics := NewCounterMetrics()
	l := testListener(store, pub, metrics)

	require.NoError(t, l.publishWithRetry(context.Background(), ev))
	assert.Len(t, pub.published, 1)
	assert.True(t, store.sent[ev.ID])

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.Published)
	assert.Equal(t, uint64(2), snap.Retries)
}

func TestListener_GivesUpAfterMaxRetries(t *testing.T) {
	ev := outboxEvent(events.TypePickMade)
	store := newFakeStore(ev)
	pub := &recordingPublisher{failures: map[uuid.UUID]int{ev.ID: 10}}
	metrics := NewCounterMetrics()
	l := testListener(store, pub, metrics)

	err := l.publishWithRetry(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.False(t, store.sent[ev.ID])
	assert.Equal(t, uint64(1), metrics.Snapshot().Failed)
}

func TestListener_ProcessUnsentKeepsOrder(t *testing.T) {
	first, second, third := outboxEvent(events.TypeTimerEvent), outboxEvent(events.TypeTimerEvent), outboxEvent(events.TypeTimerEvent)
	store := newFakeStore(first, second, third)
	pub := &recordingPublisher{failures: map[uuid.UUID]int{second.ID: 10}}
	l := testListener(store, pub, nil)

	require.NoError(t, l.processUnsent(context.Background()))
	require.Len(t, pub.published, 1)
	assert.Equal(t, first.ID, pub.published[0].ID)
	assert.False(t, store.sent[third.ID], "a failed row blocks the rows behind it")

	pub.failures = nil
	require.NoError(t, l.processUnsent(context.Background()))
	require.Len(t, pub.published, 3)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID},
		[]uuid.UUID{pub.published[0].ID, pub.published[1].ID, pub.published[2].ID})
}

func TestListener_RetryHonoursCancellation(t *testing.T) {
	ev := outboxEvent(events.TypeTimerEvent)
	pub := &recordingPublisher{failures: map[uuid.UUID]int{ev.ID: 10}}
	l := testListener(newFakeStore(ev), pub, nil)
	l.cfg.RetryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.publishWithRetry(ctx, ev), context.Canceled)
}

func TestMarshalEnvelope(t *testing.T) {
	ev := outboxEvent(events.TypeTimerEvent)
	data, err := MarshalEnvelope(ev)
	require.NoError(t, err)

	var env events.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, ev.ID.String(), env.EventID)
	assert.Equal(t, events.TypeTimerEvent, env.EventType)
	assert.Equal(t, ev.DraftID.String(), env.DraftID)
	assert.True(t, env.Timestamp.Equal(ev.CreatedAt))
	assert.JSONEq(t, `{"k":"v"}`, string(env.Payload))
}
