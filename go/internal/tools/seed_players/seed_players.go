package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/draftclock/go/internal/dbconfig"
)

// Player is one entry of the player pool file. Rank orders auto-picks; lower is better.
type Player struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Position string    `json:"position"`
	Rank     int       `json:"rank"`
}

func main() {
	ctx := context.Background()

	path := "go/internal/assets/players.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the player pool
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	var players []Player
	if err := json.Unmarshal(data, &players); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal players: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	total, inserted, skipped, errs := len(players), 0, 0, 0
	for i, p := range players {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.Rank == 0 {
			p.Rank = i + 1
		}
		tag, err := pool.Exec(ctx, `
            INSERT INTO players (id, full_name, position, rank)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING
        `, p.ID, p.FullName, p.Position, p.Rank)
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert %q: %v\n", p.FullName, err)
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}
	fmt.Printf(
		"Players seed: total=%d inserted=%d skipped=%d errors=%d\n",
		total, inserted, skipped, errs,
	)
}
