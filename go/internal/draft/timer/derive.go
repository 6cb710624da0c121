package timer

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// DefaultStaleAfter separates a merely old running clock from an orphaned one.
const DefaultStaleAfter = 600 * time.Second

// State is the derived view of a draft clock at an instant.
type State struct {
	DraftID          uuid.UUID
	Status           models.TimerStatus
	SecondsRemaining float64
	OriginalDuration int
	PickID           *uuid.UUID
	AsOf             time.Time
	// Stale is set when a running clock ran out longer than the staleness
	// threshold ago and nobody recorded the expiry.
	Stale  bool
	Anchor *models.TimerEvent
}

// Overtime reports whether the clock has run past zero.
func (s State) Overtime() bool {
	return s.SecondsRemaining < 0
}

// Derive computes the clock state from the latest event as of now.
// It is pure: the server, the scheduler and every viewer use it identically.
func Derive(ev *models.TimerEvent, now time.Time, staleAfter time.Duration) State {
	if ev == nil {
		return State{Status: models.TimerStatusStopped, AsOf: now}
	}

	st := State{
		DraftID:          ev.DraftID,
		OriginalDuration: ev.OriginalDuration,
		PickID:           ev.PickID,
		AsOf:             now,
		Anchor:           ev,
	}

	elapsed := now.Sub(ev.CreatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	st.Status, st.SecondsRemaining = statusOf(ev), ev.SecondsRemaining
	if decays(ev) {
		st.SecondsRemaining = ev.SecondsRemaining - elapsed.Seconds()
	}

	if st.Status == models.TimerStatusRunning && staleAfter > 0 &&
		elapsed > staleAfter && st.SecondsRemaining <= 0 {
		st.Stale = true
		st.Status = models.TimerStatusExpired
	}

	return st
}

func decays(ev *models.TimerEvent) bool {
	if ev.EventType == models.TimerEventSync {
		return ev.SyncState == models.TimerStatusRunning || ev.SyncState == models.TimerStatusExpired
	}
	return ev.EventType.Decays()
}

func statusOf(ev *models.TimerEvent) models.TimerStatus {
	switch ev.EventType {
	case models.TimerEventStart, models.TimerEventResume:
		return models.TimerStatusRunning
	case models.TimerEventPause:
		return models.TimerStatusPaused
	case models.TimerEventExpire:
		return models.TimerStatusExpired
	case models.TimerEventSync:
		if ev.SyncState != "" {
			return ev.SyncState
		}
	}
	return models.TimerStatusStopped
}
