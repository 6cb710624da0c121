package models

import (
	"github.com/google/uuid"
)

type FantasyTeam struct {
	ID       uuid.UUID `json:"id"`
	LeagueID uuid.UUID `json:"league_id"`
	TeamKey  string    `json:"team_key"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Name     string    `json:"name"`
}
