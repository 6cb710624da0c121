package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// MemoryLog is an in-process EventLog and schedule store for a single instance.
// It enforces the same sequence CAS as the Postgres repository.
type MemoryLog struct {
	mu        sync.Mutex
	events    map[uuid.UUID][]models.TimerEvent
	schedules map[uuid.UUID]models.TimerSchedule
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		events:    make(map[uuid.UUID][]models.TimerEvent),
		schedules: make(map[uuid.UUID]models.TimerSchedule),
	}
}

func (m *MemoryLog) Latest(_ context.Context, draftID uuid.UUID) (*models.TimerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evs := m.events[draftID]
	if len(evs) == 0 {
		return nil, nil
	}
	ev := evs[len(evs)-1]
	return &ev, nil
}

func (m *MemoryLog) Append(_ context.Context, req AppendRequest) (*models.TimerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := req.Event
	evs := m.events[ev.DraftID]
	if ev.Sequence != int64(len(evs))+1 {
		return nil, models.ErrConflict
	}
	m.events[ev.DraftID] = append(evs, ev)

	switch req.Schedule {
	case ScheduleArm:
		m.schedules[ev.DraftID] = models.TimerSchedule{
			DraftID:  ev.DraftID,
			EventID:  ev.ID,
			Sequence: ev.Sequence,
			FireAt:   req.FireAt,
		}
	case ScheduleDisarm:
		delete(m.schedules, ev.DraftID)
	}
	return &ev, nil
}

// Events returns a copy of a draft's log in order.
func (m *MemoryLog) Events(draftID uuid.UUID) []models.TimerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TimerEvent(nil), m.events[draftID]...)
}

// ListSchedules returns every armed expiry.
func (m *MemoryLog) ListSchedules(_ context.Context) ([]models.TimerSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.TimerSchedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

// DueSchedules returns armed expiries with FireAt at or before the given instant.
func (m *MemoryLog) DueSchedules(ctx context.Context, before time.Time, limit int) ([]models.TimerSchedule, error) {
	all, _ := m.ListSchedules(ctx)
	var due []models.TimerSchedule
	for _, s := range all {
		if s.FireAt.After(before) {
			break
		}
		due = append(due, s)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}
