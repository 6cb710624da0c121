package pick

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// SubmitPickRequest represents a request to make a draft pick
type SubmitPickRequest struct {
	DraftID  uuid.UUID `json:"draft_id"`
	PickID   uuid.UUID `json:"pick_id"`
	PlayerID uuid.UUID `json:"player_id"`
	// Override lets a commissioner refill a vacated slot behind the cursor.
	Override bool `json:"override"`
}

// KeeperRequest marks a slot as a keeper, filling it when PlayerID is set.
type KeeperRequest struct {
	DraftID  uuid.UUID  `json:"draft_id"`
	PickID   uuid.UUID  `json:"pick_id"`
	IsKeeper bool       `json:"is_keeper"`
	PlayerID *uuid.UUID `json:"player_id,omitempty"`
}

// StartTimerRequest starts the clock. Zero Seconds means the draft's pick time,
// a nil PickID means the pick on the clock.
type StartTimerRequest struct {
	DraftID  uuid.UUID  `json:"draft_id"`
	Seconds  int        `json:"seconds"`
	PickID   *uuid.UUID `json:"pick_id,omitempty"`
	Override bool       `json:"override"`
}

// MakePickParams is the storage-level pick write.
type MakePickParams struct {
	DraftID  uuid.UUID
	PickID   uuid.UUID
	PlayerID uuid.UUID
	IsKeeper bool
	Override bool
	At       time.Time
}

// PickOutcome is the committed result of a pick write.
type PickOutcome struct {
	Pick     models.DraftPick
	Draft    models.Draft
	Advanced bool
	// NextPick is the slot now on the clock. Nil unless the cursor moved to an open slot.
	NextPick *models.DraftPick
}

// Completed reports whether the write finished the draft.
func (o PickOutcome) Completed() bool {
	return o.Draft.Status == models.DraftStatusCompleted
}

// VacateOutcome is the committed result of deleting a pick.
type VacateOutcome struct {
	Pick    models.DraftPick `json:"pick"`
	Draft   models.Draft     `json:"draft"`
	Rewound bool             `json:"rewound"`
}

// checkTurn validates a pick write against the draft cursor and reports whether
// it moves the cursor.
//
//   - Regular picks must be for the slot on the clock.
//   - Overrides may refill an open slot behind the cursor and never move it.
//   - Keepers may fill any open slot, before or during the draft, and move the
//     cursor only when they fill the slot on the clock.
func checkTurn(d *models.Draft, p *models.DraftPick, keeper, override bool) (bool, error) {
	switch d.Status {
	case models.DraftStatusInProgress:
	case models.DraftStatusPending:
		if !keeper {
			return false, models.ErrDraftNotInProgress
		}
		if p.IsPicked {
			return false, models.ErrPickAlreadyMade
		}
		return false, nil
	default:
		return false, models.ErrDraftNotInProgress
	}

	if p.IsPicked {
		return false, models.ErrPickAlreadyMade
	}
	if d.CurrentPick == nil {
		return false, models.ErrNotCurrentPick
	}
	cur := *d.CurrentPick
	switch {
	case p.TotalPickNumber == cur:
		return true, nil
	case keeper:
		return false, nil
	case override && p.TotalPickNumber < cur:
		return false, nil
	default:
		return false, models.ErrNotCurrentPick
	}
}
