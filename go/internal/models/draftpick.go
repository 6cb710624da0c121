package models

import (
	"github.com/google/uuid"
	"time"
)

// DraftPick represents a single slot in the draft order.
type DraftPick struct {
	ID              uuid.UUID  `json:"id"`
	DraftID         uuid.UUID  `json:"draft_id"`
	RoundNumber     int        `json:"round_number"`
	PickNumber      int        `json:"pick_number"`       // pick number within the round
	TotalPickNumber int        `json:"total_pick_number"` // global ordinal, matches Draft.CurrentPick
	TeamKey         string     `json:"team_key"`
	PlayerID        *uuid.UUID `json:"player_id,omitempty"` // nil until picked
	IsPicked        bool       `json:"is_picked"`
	IsKeeper        bool       `json:"is_keeper"`
	PickedAt        *time.Time `json:"picked_at,omitempty"`
}
