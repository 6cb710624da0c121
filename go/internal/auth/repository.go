package auth

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository answers authorization questions from the leagues and fantasy_teams tables.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) IsCommissioner(ctx context.Context, userID, leagueID uuid.UUID) (bool, error) {
	query, args, err := psql.Select("commissioner_id").
		From("leagues").
		Where(sq.Eq{"id": leagueID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var commissionerID uuid.UUID
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&commissionerID)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: league %s", models.ErrNotFound, leagueID)
	}
	if err != nil {
		return false, fmt.Errorf("%w: query league: %w", models.ErrUpstreamUnavailable, err)
	}
	return commissionerID == userID, nil
}

func (r *Repository) OwnsTeam(ctx context.Context, userID, leagueID uuid.UUID, teamKey string) (bool, error) {
	query, args, err := psql.Select("COUNT(*)").
		From("fantasy_teams").
		Where(sq.Eq{"league_id": leagueID, "team_key": teamKey, "owner_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: query team owner: %w", models.ErrUpstreamUnavailable, err)
	}
	return n > 0, nil
}
