package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev12/draftclock/go/internal/database"
)

const connectTimeout = 15 * time.Second

func setupDatabase(ctx context.Context, config *Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := database.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
