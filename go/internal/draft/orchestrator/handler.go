package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DomainEvent represents a domain event from JetStream
type DomainEvent = events.Envelope

// HandleDomainEvent routes a stream event. Only timer events affect scheduling.
func (o *Orchestrator) HandleDomainEvent(eventType string, draftID uuid.UUID, payload []byte) error {
	if eventType != events.TypeTimerEvent {
		return nil
	}

	var p events.TimerEventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal TimerEvent payload: %w", err)
	}
	ev, err := p.ToModel(draftID)
	if err != nil {
		return err
	}
	o.HandleTimerEvent(ev)
	return nil
}

// HandleTimerEvent arms or cancels the in-memory timer for an appended event. It
// has the timer.Observer signature so it can be registered on the authority.
func (o *Orchestrator) HandleTimerEvent(ev models.TimerEvent) {
	switch ev.EventType {
	case models.TimerEventStart, models.TimerEventResume:
		o.arm(ev.DraftID, ev.Sequence, timer.FireAt(ev))

	case models.TimerEventPause, models.TimerEventReset, models.TimerEventExpire:
		o.cancelTimer(ev.DraftID, ev.Sequence)

	default:
		log.Debug().
			Str("draft_id", ev.DraftID.String()).
			Str("event_type", string(ev.EventType)).
			Msg("ignoring timer event")
	}
}
