package models

import (
	"github.com/google/uuid"
)

// Player is the minimal player record the engine needs for auto-pick.
type Player struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Position string    `json:"position"`
	Rank     int       `json:"rank"`
}
