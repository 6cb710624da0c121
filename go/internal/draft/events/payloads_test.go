package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	draftID := uuid.MustParse("7b0e3a60-2f0e-4d8c-9a51-0d1b0f6f8a11")

	assert.Equal(t, "draft.events.timer."+draftID.String(), Subject("draft.events", TypeTimerEvent, draftID))
	assert.Equal(t, "draft.events.pick."+draftID.String(), Subject("draft.events", TypePickVacated, draftID))
	assert.Equal(t, "draft.events.draft."+draftID.String(), Subject("draft.events", TypeDraftCompleted, draftID))
}

func TestTimerEventPayload_CarriesPublishedShape(t *testing.T) {
	pickID := uuid.New()
	ev := models.TimerEvent{
		ID:               uuid.New(),
		DraftID:          uuid.New(),
		Sequence:         3,
		EventType:        models.TimerEventPause,
		SecondsRemaining: 61.5,
		OriginalDuration: 90,
		PickID:           &pickID,
		TriggeredBy:      models.TriggeredByUser,
		CreatedAt:        time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC),
	}

	back, err := NewTimerEventPayload(ev).ToModel(ev.DraftID)
	require.NoError(t, err)
	assert.Equal(t, ev, back)
}

func TestTimerEventPayload_RejectsBadPickID(t *testing.T) {
	bad := "nope"
	_, err := TimerEventPayload{PickID: &bad}.ToModel(uuid.New())
	assert.Error(t, err)
}
