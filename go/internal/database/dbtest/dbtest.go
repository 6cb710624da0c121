// Package dbtest provides a migrated Postgres database and draft fixtures for
// integration suites. Suites are skipped when DATABASE_URL is unset.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/database"
	"github.com/mcdev12/draftclock/go/internal/dbconfig"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// Open connects to DATABASE_URL and applies migrations.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres integration tests")
	}

	ctx := context.Background()
	db, err := database.Open(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// Truncate empties every table.
func Truncate(t testing.TB, db *sql.DB) {
	t.Helper()

	_, err := db.Exec(`TRUNCATE leagues, fantasy_teams, players, drafts, draft_picks,
		drafted_players, timer_events, timer_schedules, draft_outbox CASCADE`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// DraftParams shapes a seeded draft.
type DraftParams struct {
	Teams       int
	Rounds      int
	Players     int
	Status      models.DraftStatus
	UseTimer    bool
	PickSeconds int
}

// Fixture is a seeded league with one draft.
type Fixture struct {
	LeagueID       uuid.UUID
	CommissionerID uuid.UUID
	DraftID        uuid.UUID
	Teams          []models.FantasyTeam
	Players        []models.Player
	Picks          []models.DraftPick
}

// PickAt returns the slot with the given overall number (1-based).
func (f Fixture) PickAt(n int) models.DraftPick {
	return f.Picks[n-1]
}

// OwnerOf returns the owner of the team holding slot n.
func (f Fixture) OwnerOf(n int) uuid.UUID {
	key := f.PickAt(n).TeamKey
	for _, team := range f.Teams {
		if team.TeamKey == key {
			return team.OwnerID
		}
	}
	return uuid.Nil
}

// SeedDraft inserts a league, its teams, a player pool and a draft with every
// slot pre-populated in linear order. An in-progress draft starts on pick 1.
func SeedDraft(t testing.TB, db *sql.DB, p DraftParams) Fixture {
	t.Helper()

	if p.Teams == 0 {
		p.Teams = 2
	}
	if p.Rounds == 0 {
		p.Rounds = 2
	}
	if p.Players == 0 {
		p.Players = p.Teams*p.Rounds + 4
	}
	if p.Status == "" {
		p.Status = models.DraftStatusInProgress
	}
	if p.PickSeconds == 0 {
		p.PickSeconds = 90
	}

	f := Fixture{
		LeagueID:       uuid.New(),
		CommissionerID: uuid.New(),
		DraftID:        uuid.New(),
	}

	mustExec(t, db, `INSERT INTO leagues (id, name, commissioner_id) VALUES ($1, $2, $3)`,
		f.LeagueID, "Test League", f.CommissionerID)

	for i := 0; i < p.Teams; i++ {
		team := models.FantasyTeam{
			ID:       uuid.New(),
			LeagueID: f.LeagueID,
			TeamKey:  fmt.Sprintf("team-%d", i+1),
			OwnerID:  uuid.New(),
			Name:     fmt.Sprintf("Team %d", i+1),
		}
		mustExec(t, db, `INSERT INTO fantasy_teams (id, league_id, team_key, owner_id, name) VALUES ($1, $2, $3, $4, $5)`,
			team.ID, team.LeagueID, team.TeamKey, team.OwnerID, team.Name)
		f.Teams = append(f.Teams, team)
	}

	for i := 0; i < p.Players; i++ {
		player := models.Player{
			ID:       uuid.New(),
			FullName: fmt.Sprintf("Player %d", i+1),
			Position: "WR",
			Rank:     i + 1,
		}
		mustExec(t, db, `INSERT INTO players (id, full_name, position, rank) VALUES ($1, $2, $3, $4)`,
			player.ID, player.FullName, player.Position, player.Rank)
		f.Players = append(f.Players, player)
	}

	total := p.Teams * p.Rounds
	var current *int
	var startedAt *time.Time
	if p.Status == models.DraftStatusInProgress {
		one := 1
		now := time.Now()
		current, startedAt = &one, &now
	}
	mustExec(t, db, `INSERT INTO drafts (id, league_id, rounds, total_picks, status, current_pick, use_timer, pick_seconds, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.DraftID, f.LeagueID, p.Rounds, total, p.Status, current, p.UseTimer, p.PickSeconds, startedAt)

	n := 0
	for round := 1; round <= p.Rounds; round++ {
		for slot := 1; slot <= p.Teams; slot++ {
			n++
			pick := models.DraftPick{
				ID:              uuid.New(),
				DraftID:         f.DraftID,
				RoundNumber:     round,
				PickNumber:      slot,
				TotalPickNumber: n,
				TeamKey:         f.Teams[slot-1].TeamKey,
			}
			mustExec(t, db, `INSERT INTO draft_picks (id, draft_id, round_number, pick_number, total_pick_number, team_key)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				pick.ID, pick.DraftID, pick.RoundNumber, pick.PickNumber, pick.TotalPickNumber, pick.TeamKey)
			f.Picks = append(f.Picks, pick)
		}
	}

	return f
}

func mustExec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("seed: %v", err)
	}
}
