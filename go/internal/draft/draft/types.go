package draft

import (
	"github.com/mcdev12/draftclock/go/internal/models"
)

// Phase is the lifecycle position of a draft. Paused is a flag on an in-progress
// draft in storage but a phase of its own for transitions.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
)

// PhaseOf returns the lifecycle phase of d.
func PhaseOf(d *models.Draft) Phase {
	switch d.Status {
	case models.DraftStatusPending:
		return PhasePending
	case models.DraftStatusCompleted:
		return PhaseCompleted
	}
	if d.IsPaused {
		return PhasePaused
	}
	return PhaseRunning
}

// StartOutcome is the committed result of starting a draft.
type StartOutcome struct {
	Draft models.Draft
	// FirstPick is the slot on the clock. Nil when keepers filled every slot.
	FirstPick *models.DraftPick
}

// PauseDraftRequest pauses a running draft.
type PauseDraftRequest struct {
	Reason string `json:"reason"`
}

// DraftResponse wraps a draft.
type DraftResponse struct {
	Draft models.Draft `json:"draft"`
}
