package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// DraftEvent represents the base structure for all frames sent to viewers
type DraftEvent struct {
	ID        string          `json:"id"`                 // Event UUID
	DraftID   string          `json:"draft_id"`           // Draft UUID
	Type      EventType       `json:"type"`               // Event type
	Timestamp time.Time       `json:"timestamp"`          // Event creation time
	Sequence  int64           `json:"sequence,omitempty"` // Timer log position, timer and sync frames only
	Data      json.RawMessage `json:"data"`               // Event-specific payload
}

// EventType represents the type of draft event
type EventType string

const (
	EventTypeTimer          EventType = events.TypeTimerEvent
	EventTypeSync           EventType = "Sync"
	EventTypePickMade       EventType = events.TypePickMade
	EventTypePickVacated    EventType = events.TypePickVacated
	EventTypeDraftStarted   EventType = events.TypeDraftStarted
	EventTypeDraftPaused    EventType = events.TypeDraftPaused
	EventTypeDraftResumed   EventType = events.TypeDraftResumed
	EventTypeDraftCompleted EventType = events.TypeDraftCompleted
)

// IsTimer reports whether the frame carries a TimerEventPayload.
func (t EventType) IsTimer() bool {
	return t == EventTypeTimer || t == EventTypeSync
}

// FromEnvelope converts a JetStream envelope to a viewer frame.
func FromEnvelope(env events.Envelope) (*DraftEvent, error) {
	switch EventType(env.EventType) {
	case EventTypeTimer, EventTypePickMade, EventTypePickVacated, EventTypeDraftStarted,
		EventTypeDraftPaused, EventTypeDraftResumed, EventTypeDraftCompleted:
	default:
		return nil, fmt.Errorf("unknown event type: %s", env.EventType)
	}
	if _, err := uuid.Parse(env.DraftID); err != nil {
		return nil, fmt.Errorf("parse draft ID: %w", err)
	}

	ev := &DraftEvent{
		ID:        env.EventID,
		DraftID:   env.DraftID,
		Type:      EventType(env.EventType),
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	}
	// Timer frames carry the event's own created_at and log sequence, not the relay time.
	if ev.Type == EventTypeTimer {
		var p events.TimerEventPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal timer payload: %w", err)
		}
		ev.Timestamp = p.CreatedAt
		ev.Sequence = p.Sequence
	}
	return ev, nil
}

// NewSyncFrame wraps a derived clock snapshot for a newly connected viewer.
func NewSyncFrame(ev models.TimerEvent) (*DraftEvent, error) {
	data, err := json.Marshal(events.NewTimerEventPayload(ev))
	if err != nil {
		return nil, fmt.Errorf("marshal sync payload: %w", err)
	}
	return &DraftEvent{
		ID:        ev.ID.String(),
		DraftID:   ev.DraftID.String(),
		Type:      EventTypeSync,
		Timestamp: ev.CreatedAt,
		Sequence:  ev.Sequence,
		Data:      data,
	}, nil
}

// TimerEvent decodes the clock event carried by a timer or sync frame.
func (e *DraftEvent) TimerEvent() (models.TimerEvent, error) {
	if !e.Type.IsTimer() {
		return models.TimerEvent{}, fmt.Errorf("%s frame carries no timer event", e.Type)
	}
	draftID, err := uuid.Parse(e.DraftID)
	if err != nil {
		return models.TimerEvent{}, fmt.Errorf("parse draft ID: %w", err)
	}
	var p events.TimerEventPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return models.TimerEvent{}, fmt.Errorf("unmarshal timer payload: %w", err)
	}
	return p.ToModel(draftID)
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *DraftEvent) (interface{}, error) {
	var payload interface{}
	switch event.Type {
	case EventTypeTimer, EventTypeSync:
		payload = &events.TimerEventPayload{}
	case EventTypePickMade:
		payload = &events.PickMadePayload{}
	case EventTypePickVacated:
		payload = &events.PickVacatedPayload{}
	case EventTypeDraftStarted:
		payload = &events.DraftStartedPayload{}
	case EventTypeDraftPaused:
		payload = &events.DraftPausedPayload{}
	case EventTypeDraftResumed:
		payload = &events.DraftResumedPayload{}
	case EventTypeDraftCompleted:
		payload = &events.DraftCompletedPayload{}
	default:
		return nil, nil // Unknown event type
	}
	if err := json.Unmarshal(event.Data, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
