package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls     atomic.Int32
	remaining float64
	err       error
}

func (s *stubSource) SyncEvent(_ context.Context, draftID uuid.UUID) (models.TimerEvent, error) {
	s.calls.Add(1)
	if s.err != nil {
		return models.TimerEvent{}, s.err
	}
	return models.TimerEvent{
		ID:               uuid.New(),
		DraftID:          draftID,
		EventType:        models.TimerEventSync,
		SecondsRemaining: s.remaining,
		OriginalDuration: 90,
		CreatedAt:        time.Now().UTC(),
		SyncState:        models.TimerStatusRunning,
	}, nil
}

type gatewayFixture struct {
	hub    *Hub
	cm     *ConnectionManager
	source *stubSource
	server *httptest.Server
}

func newGatewayFixture(t *testing.T, source *stubSource) *gatewayFixture {
	t.Helper()
	hub := NewHub()
	cm := NewConnectionManager(DefaultConnectionConfig(), hub, source)
	mux := http.NewServeMux()
	NewWebSocketHandler(cm).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &gatewayFixture{hub: hub, cm: cm, source: source, server: server}
}

func (f *gatewayFixture) dial(t *testing.T, draftID uuid.UUID) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/draft?draft_id=" + draftID.String() + "&user_id=viewer"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) DraftEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev DraftEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestConnectionManager_SyncFirstThenEvents(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{remaining: 61.5})
	draftID := uuid.New()
	conn := f.dial(t, draftID)

	first := readFrame(t, conn)
	require.Equal(t, EventTypeSync, first.Type)
	clock, err := first.TimerEvent()
	require.NoError(t, err)
	assert.InDelta(t, 61.5, clock.SecondsRemaining, 1e-9)
	assert.Equal(t, models.TimerStatusRunning, clock.SyncState)

	ev := &DraftEvent{
		ID:        uuid.NewString(),
		DraftID:   draftID.String(),
		Type:      EventTypePickMade,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`{"pick_id":"p"}`),
	}
	require.True(t, f.hub.Publish(draftID, ev))

	got := readFrame(t, conn)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, EventTypePickMade, got.Type)
	assert.JSONEq(t, `{"pick_id":"p"}`, string(got.Data))
}

func TestConnectionManager_OtherDraftsNotDelivered(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{})
	watched, other := uuid.New(), uuid.New()
	conn := f.dial(t, watched)
	readFrame(t, conn)

	f.hub.Publish(other, &DraftEvent{ID: "other", Type: EventTypeDraftPaused})
	f.hub.Publish(watched, &DraftEvent{ID: "mine", Type: EventTypeDraftPaused})

	assert.Equal(t, "mine", readFrame(t, conn).ID)
}

func TestConnectionManager_SyncRequest(t *testing.T) {
	source := &stubSource{remaining: 30}
	f := newGatewayFixture(t, source)
	conn := f.dial(t, uuid.New())
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "sync"}))
	assert.Equal(t, EventTypeSync, readFrame(t, conn).Type)
	assert.Equal(t, int32(2), source.calls.Load())

	// Anything else is ignored and the connection stays open.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "sync"}))
	assert.Equal(t, EventTypeSync, readFrame(t, conn).Type)
}

func TestConnectionManager_SourceFailureStillStreams(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{err: errors.New("db down")})
	draftID := uuid.New()
	conn := f.dial(t, draftID)

	require.Eventually(t, func() bool {
		return f.cm.GetConnectionStats().TotalConnections == 1
	}, time.Second, 10*time.Millisecond)

	f.hub.Publish(draftID, &DraftEvent{ID: "evt", Type: EventTypeDraftResumed})
	assert.Equal(t, "evt", readFrame(t, conn).ID)
}

func TestConnectionManager_PoolLifecycle(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{})
	draftID := uuid.New()

	a := f.dial(t, draftID)
	readFrame(t, a)
	b := f.dial(t, draftID)
	readFrame(t, b)

	stats := f.cm.GetConnectionStats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveDrafts)
	assert.Equal(t, 2, stats.DraftConnections[draftID.String()])
	assert.Equal(t, 1, stats.Hub.Subscribers, "one hub subscription per draft")

	a.Close()
	b.Close()
	require.Eventually(t, func() bool {
		s := f.cm.GetConnectionStats()
		return s.TotalConnections == 0 && s.Hub.Subscribers == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnectionManager_StartClosesConnections(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{})
	conn := f.dial(t, uuid.New())
	readFrame(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.cm.Start(ctx)
		close(done)
	}()
	cancel()
	<-done

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketHandler_Validation(t *testing.T) {
	f := newGatewayFixture(t, &stubSource{})

	resp, err := http.Get(f.server.URL + "/ws/draft")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/ws/draft?draft_id=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Zero(t, stats.TotalConnections)
}

func TestEventConsumer_Handle(t *testing.T) {
	hub := NewHub()
	ec := &EventConsumer{hub: hub}
	draftID := uuid.New()
	sub := hub.Subscribe(draftID, 4)

	ev := models.TimerEvent{ID: uuid.New(), DraftID: draftID, Sequence: 1, EventType: models.TimerEventStart, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(timerEnvelope(t, ev, time.Now()))
	require.NoError(t, err)

	require.NoError(t, ec.handle("draft.events.timer."+draftID.String(), data))
	assert.Equal(t, EventTypeTimer, receive(t, sub).Type)

	// Redelivery is acknowledged but not fanned out again.
	require.NoError(t, ec.handle("draft.events.timer."+draftID.String(), data))
	assertEmpty(t, sub)

	err = ec.handle("draft.events.timer.x", []byte("{"))
	assert.ErrorIs(t, err, errPoison)

	bad, err := json.Marshal(events.Envelope{EventID: "e", EventType: "Nope", DraftID: draftID.String()})
	require.NoError(t, err)
	assert.ErrorIs(t, ec.handle("draft.events.draft.x", bad), errPoison)
}
