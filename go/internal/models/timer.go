package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimerEventType is the kind of intent recorded in the timer event log.
type TimerEventType string

const (
	TimerEventStart  TimerEventType = "start"
	TimerEventPause  TimerEventType = "pause"
	TimerEventResume TimerEventType = "resume"
	TimerEventReset  TimerEventType = "reset"
	TimerEventExpire TimerEventType = "expire"
	TimerEventSync   TimerEventType = "sync"
)

// Decays reports whether remaining time keeps counting down after the event.
func (t TimerEventType) Decays() bool {
	return t == TimerEventStart || t == TimerEventResume || t == TimerEventExpire
}

// TriggeredBy distinguishes manual actions from automatic ones.
type TriggeredBy string

const (
	TriggeredByUser   TriggeredBy = "user"
	TriggeredBySystem TriggeredBy = "system"
)

// TimerStatus is the derived state of a draft clock.
type TimerStatus string

const (
	TimerStatusStopped TimerStatus = "stopped"
	TimerStatusRunning TimerStatus = "running"
	TimerStatusPaused  TimerStatus = "paused"
	TimerStatusExpired TimerStatus = "expired"
)

// TimerEvent is an immutable fact in a draft's timer log.
type TimerEvent struct {
	ID               uuid.UUID       `json:"id"`
	DraftID          uuid.UUID       `json:"draft_id"`
	Sequence         int64           `json:"sequence"`
	EventType        TimerEventType  `json:"event_type"`
	SecondsRemaining float64         `json:"seconds_remaining"` // as measured at CreatedAt
	OriginalDuration int             `json:"original_duration"`
	PickID           *uuid.UUID      `json:"pick_id,omitempty"`
	TriggeredBy      TriggeredBy     `json:"triggered_by"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`

	// SyncState is only set on sync events, which are broadcast but never stored.
	SyncState TimerStatus `json:"state,omitempty"`
}

// NewerThan reports whether e supersedes other in the draft's ordering. Sequence
// decides. CreatedAt only orders events of one sequence, i.e. sync snapshots of the
// same anchor.
func (e TimerEvent) NewerThan(other TimerEvent) bool {
	if e.Sequence != other.Sequence {
		return e.Sequence > other.Sequence
	}
	return e.CreatedAt.After(other.CreatedAt)
}

// TimerSchedule is a durable armed expiry for one event generation.
type TimerSchedule struct {
	DraftID  uuid.UUID `json:"draft_id"`
	EventID  uuid.UUID `json:"event_id"`
	Sequence int64     `json:"sequence"`
	FireAt   time.Time `json:"fire_at"`
}
