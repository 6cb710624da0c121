package gateway

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultSubscriberBuffer = 64
	recentIDsPerDraft       = 128
)

// Hub fans events out to the subscribers of each draft. Delivery from the bus is
// at least once, so the hub drops repeats and, for timer frames, anything with a lower
// log sequence than the newest timer frame already delivered for the draft.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[uint64]chan *DraftEvent
	nextID uint64

	seenMu sync.Mutex
	seen   map[uuid.UUID]*draftMark

	published atomic.Uint64
	stale     atomic.Uint64
	overflow  atomic.Uint64
}

// draftMark remembers what a draft's subscribers have already been sent.
type draftMark struct {
	lastSeq int64
	recent  map[string]struct{}
	order   []string
}

func (m *draftMark) remember(id string) {
	if id == "" {
		return
	}
	m.recent[id] = struct{}{}
	m.order = append(m.order, id)
	if len(m.order) > recentIDsPerDraft {
		delete(m.recent, m.order[0])
		m.order = m.order[1:]
	}
}

// Subscription is a draft's event feed. C is closed by Close.
type Subscription struct {
	C       <-chan *DraftEvent
	DraftID uuid.UUID

	id   uint64
	hub  *Hub
	once sync.Once
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s.DraftID, s.id) })
}

// HubStats is a point-in-time view of hub counters.
type HubStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Stale       uint64 `json:"stale_dropped"`
	Overflow    uint64 `json:"overflow_dropped"`
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[uuid.UUID]map[uint64]chan *DraftEvent),
		seen: make(map[uuid.UUID]*draftMark),
	}
}

// Subscribe registers for draftID's events. A buffer of zero or less uses the default.
func (h *Hub) Subscribe(draftID uuid.UUID, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan *DraftEvent, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[draftID] == nil {
		h.subs[draftID] = make(map[uint64]chan *DraftEvent)
	}
	h.subs[draftID][id] = ch
	h.mu.Unlock()

	return &Subscription{C: ch, DraftID: draftID, id: id, hub: h}
}

func (h *Hub) unsubscribe(draftID uuid.UUID, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pool := h.subs[draftID]
	ch, ok := pool[id]
	if !ok {
		return
	}
	delete(pool, id)
	close(ch)
	if len(pool) == 0 {
		delete(h.subs, draftID)
	}
}

// Publish delivers ev to the draft's subscribers unless it is a repeat or a stale
// timer frame. It reports whether the event was delivered. A subscriber whose buffer
// is full misses the event.
func (h *Hub) Publish(draftID uuid.UUID, ev *DraftEvent) bool {
	if !h.admit(draftID, ev) {
		h.stale.Add(1)
		log.Debug().
			Str("draft_id", draftID.String()).
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Msg("dropping stale event")
		return false
	}
	h.published.Add(1)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs[draftID] {
		select {
		case ch <- ev:
		default:
			h.overflow.Add(1)
			log.Warn().
				Str("draft_id", draftID.String()).
				Uint64("subscriber", id).
				Msg("subscriber buffer full, dropping event")
		}
	}
	return true
}

func (h *Hub) admit(draftID uuid.UUID, ev *DraftEvent) bool {
	h.seenMu.Lock()
	defer h.seenMu.Unlock()

	mark := h.seen[draftID]
	if mark == nil {
		mark = &draftMark{recent: make(map[string]struct{})}
		h.seen[draftID] = mark
	}
	if _, dup := mark.recent[ev.ID]; dup && ev.ID != "" {
		return false
	}
	if ev.Type == EventTypeTimer {
		if ev.Sequence < mark.lastSeq {
			return false
		}
		mark.lastSeq = ev.Sequence
	}
	mark.remember(ev.ID)
	return true
}

// Forget drops what the hub remembers about a draft, e.g. once it has completed.
func (h *Hub) Forget(draftID uuid.UUID) {
	h.seenMu.Lock()
	delete(h.seen, draftID)
	h.seenMu.Unlock()
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := 0
	for _, pool := range h.subs {
		n += len(pool)
	}
	h.mu.RUnlock()

	return HubStats{
		Subscribers: n,
		Published:   h.published.Load(),
		Stale:       h.stale.Load(),
		Overflow:    h.overflow.Load(),
	}
}
