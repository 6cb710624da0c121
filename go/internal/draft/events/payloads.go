package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// Event payload types that are shared between the engine, the relay and the gateway

// Event type names as stored in the outbox and carried in the envelope.
const (
	TypeTimerEvent     = "TimerEvent"
	TypePickMade       = "PickMade"
	TypePickVacated    = "PickVacated"
	TypeDraftStarted   = "DraftStarted"
	TypeDraftPaused    = "DraftPaused"
	TypeDraftResumed   = "DraftResumed"
	TypeDraftCompleted = "DraftCompleted"
)

// Envelope is the JetStream message body.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	DraftID   string          `json:"draftId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Subject returns the subject an event is published on, e.g. draft.events.timer.<draft_id>.
func Subject(prefix, eventType string, draftID uuid.UUID) string {
	return fmt.Sprintf("%s.%s.%s", prefix, subjectGroup(eventType), draftID)
}

func subjectGroup(eventType string) string {
	switch eventType {
	case TypeTimerEvent:
		return "timer"
	case TypePickMade, TypePickVacated:
		return "pick"
	default:
		return "draft"
	}
}

// TimerEventPayload is the published shape of a timer event.
type TimerEventPayload struct {
	EventID          string    `json:"event_id"`
	Sequence         int64     `json:"sequence"`
	EventType        string    `json:"event_type"`
	SecondsRemaining float64   `json:"seconds_remaining"`
	OriginalDuration int       `json:"original_duration"`
	PickID           *string   `json:"pick_id"`
	TriggeredBy      string    `json:"triggered_by"`
	CreatedAt        time.Time `json:"created_at"`
	State            string    `json:"state,omitempty"` // sync events only
}

// NewTimerEventPayload converts a stored event to its wire shape.
func NewTimerEventPayload(ev models.TimerEvent) TimerEventPayload {
	p := TimerEventPayload{
		EventID:          ev.ID.String(),
		Sequence:         ev.Sequence,
		EventType:        string(ev.EventType),
		SecondsRemaining: ev.SecondsRemaining,
		OriginalDuration: ev.OriginalDuration,
		TriggeredBy:      string(ev.TriggeredBy),
		CreatedAt:        ev.CreatedAt,
		State:            string(ev.SyncState),
	}
	if ev.PickID != nil {
		s := ev.PickID.String()
		p.PickID = &s
	}
	return p
}

// ToModel converts the wire shape back to a TimerEvent for draftID.
func (p TimerEventPayload) ToModel(draftID uuid.UUID) (models.TimerEvent, error) {
	ev := models.TimerEvent{
		DraftID:          draftID,
		Sequence:         p.Sequence,
		EventType:        models.TimerEventType(p.EventType),
		SecondsRemaining: p.SecondsRemaining,
		OriginalDuration: p.OriginalDuration,
		TriggeredBy:      models.TriggeredBy(p.TriggeredBy),
		CreatedAt:        p.CreatedAt,
		SyncState:        models.TimerStatus(p.State),
	}
	if p.EventID != "" {
		id, err := uuid.Parse(p.EventID)
		if err != nil {
			return ev, fmt.Errorf("parse event id: %w", err)
		}
		ev.ID = id
	}
	if p.PickID != nil {
		pickID, err := uuid.Parse(*p.PickID)
		if err != nil {
			return ev, fmt.Errorf("parse pick id: %w", err)
		}
		ev.PickID = &pickID
	}
	return ev, nil
}

// PickMadePayload is the payload for a PickMade event
type PickMadePayload struct {
	PickID          string    `json:"pick_id"`
	TeamKey         string    `json:"team_key"`
	PlayerID        string    `json:"player_id"`
	RoundNumber     int       `json:"round_number"`
	PickNumber      int       `json:"pick_number"`
	TotalPickNumber int       `json:"total_pick_number"`
	NextPick        int       `json:"next_pick"`
	IsKeeper        bool      `json:"is_keeper"`
	Override        bool      `json:"override"`
	MadeAt          time.Time `json:"made_at"`
}

// PickVacatedPayload is the payload for a PickVacated event
type PickVacatedPayload struct {
	PickID          string    `json:"pick_id"`
	TotalPickNumber int       `json:"total_pick_number"`
	Rewound         bool      `json:"rewound"`
	CurrentPick     int       `json:"current_pick"`
	VacatedAt       time.Time `json:"vacated_at"`
}

// DraftStartedPayload is the payload for a DraftStarted event
type DraftStartedPayload struct {
	DraftID     string    `json:"draft_id"`
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
	TotalPicks  int       `json:"total_picks"`
	CurrentPick int       `json:"current_pick"`
}

// DraftCompletedPayload is the payload for a DraftCompleted event
type DraftCompletedPayload struct {
	DraftID     string    `json:"draft_id"`
	CompletedAt time.Time `json:"completed_at"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftPausedPayload is the payload for a DraftPaused event
type DraftPausedPayload struct {
	DraftID  string    `json:"draft_id"`
	PausedAt time.Time `json:"paused_at"`
	Reason   string    `json:"reason"`
}

// DraftResumedPayload is the payload for a DraftResumed event
type DraftResumedPayload struct {
	DraftID   string    `json:"draft_id"`
	ResumedAt time.Time `json:"resumed_at"`
}
