package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/draftclock/go/internal/dbconfig"
	"github.com/urfave/cli/v2"
)

// slot is one row of the pick board.
type slot struct {
	Round   int
	Pick    int
	Overall int
	TeamKey string
}

// snakeBoard lays out rounds of picks for teams in draft order. Even rounds run
// in reverse; with thirdRoundReversal every round from the third on does too.
func snakeBoard(teams []string, rounds int, thirdRoundReversal bool) []slot {
	board := make([]slot, 0, rounds*len(teams))
	overall := 1
	for round := 1; round <= rounds; round++ {
		reversed := round%2 == 0
		if thirdRoundReversal && round >= 3 {
			reversed = true
		}
		for i := range teams {
			team := teams[i]
			if reversed {
				team = teams[len(teams)-1-i]
			}
			board = append(board, slot{Round: round, Pick: i + 1, Overall: overall, TeamKey: team})
			overall++
		}
	}
	return board
}

func main() {
	app := &cli.App{
		Name:  "seed_draft",
		Usage: "Create a league, its teams and an empty snake draft board",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "teams", Value: 10},
			&cli.IntFlag{Name: "rounds", Value: 15},
			&cli.IntFlag{Name: "pick-seconds", Value: 90},
			&cli.BoolFlag{Name: "third-round-reversal"},
			&cli.StringFlag{Name: "commissioner", Usage: "commissioner user ID (random when empty)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "seed draft: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	ctx := c.Context
	if c.Int("teams") < 2 || c.Int("rounds") < 1 {
		return fmt.Errorf("need at least 2 teams and 1 round")
	}

	commissioner := uuid.New()
	if raw := c.String("commissioner"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("parse commissioner: %w", err)
		}
		commissioner = id
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer pool.Close()

	leagueID, draftID := uuid.New(), uuid.New()
	teams := make([]string, c.Int("teams"))
	owners := make([]uuid.UUID, len(teams))
	for i := range teams {
		teams[i] = fmt.Sprintf("team-%d", i+1)
		owners[i] = uuid.New()
	}
	board := snakeBoard(teams, c.Int("rounds"), c.Bool("third-round-reversal"))

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO leagues (id, name, commissioner_id) VALUES ($1, $2, $3)`,
			leagueID, "Seeded League", commissioner); err != nil {
			return fmt.Errorf("insert league: %w", err)
		}

		batch := &pgx.Batch{}
		for i, key := range teams {
			batch.Queue(`INSERT INTO fantasy_teams (id, league_id, team_key, owner_id, name) VALUES ($1, $2, $3, $4, $5)`,
				uuid.New(), leagueID, key, owners[i], fmt.Sprintf("Team %d", i+1))
		}
		batch.Queue(`INSERT INTO drafts (id, league_id, rounds, total_picks, pick_seconds) VALUES ($1, $2, $3, $4, $5)`,
			draftID, leagueID, c.Int("rounds"), len(board), c.Int("pick-seconds"))
		for _, s := range board {
			batch.Queue(`INSERT INTO draft_picks (id, draft_id, round_number, pick_number, total_pick_number, team_key)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.New(), draftID, s.Round, s.Pick, s.Overall, s.TeamKey)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return err
	}

	fmt.Printf("league=%s draft=%s commissioner=%s picks=%d\n", leagueID, draftID, commissioner, len(board))
	for i, key := range teams {
		fmt.Printf("  %s owner=%s\n", key, owners[i])
	}
	return nil
}
