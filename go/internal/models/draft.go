package models

import (
	"github.com/google/uuid"
	"time"
)

// DraftStatus defines the status of a draft.
type DraftStatus string

const (
	DraftStatusPending    DraftStatus = "pending"
	DraftStatusInProgress DraftStatus = "in_progress"
	DraftStatusCompleted  DraftStatus = "completed"
)

// Draft is the aggregate root for turn progression.
type Draft struct {
	ID          uuid.UUID   `json:"id"`
	LeagueID    uuid.UUID   `json:"league_id"`
	Rounds      int         `json:"rounds"`
	TotalPicks  int         `json:"total_picks"`
	Status      DraftStatus `json:"status"`
	CurrentPick *int        `json:"current_pick,omitempty"` // nil until the draft starts
	UseTimer    bool        `json:"use_timer"`
	PickSeconds int         `json:"pick_seconds"`
	IsPaused    bool        `json:"is_paused"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// AutoStartTimer reports whether a new turn should start its clock immediately.
func (d *Draft) AutoStartTimer() bool {
	return d.UseTimer && !d.IsPaused && d.PickSeconds > 0
}
