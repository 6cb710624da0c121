package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

// Authorizer answers the two questions the draft engine asks about a caller.
type Authorizer interface {
	IsCommissioner(ctx context.Context, userID, leagueID uuid.UUID) (bool, error)
	OwnsTeam(ctx context.Context, userID, leagueID uuid.UUID, teamKey string) (bool, error)
}

// RequireCommissioner fails with ErrNotCommissioner unless u runs the league.
func RequireCommissioner(ctx context.Context, a Authorizer, u User, leagueID uuid.UUID) error {
	if u.IsSystem() {
		return nil
	}
	ok, err := a.IsCommissioner(ctx, u.ID, leagueID)
	if err != nil {
		return fmt.Errorf("check commissioner: %w", err)
	}
	if !ok {
		return models.ErrNotCommissioner
	}
	return nil
}

// RequireTeamOrCommissioner allows the owner of teamKey or the league commissioner.
func RequireTeamOrCommissioner(ctx context.Context, a Authorizer, u User, leagueID uuid.UUID, teamKey string) error {
	if u.IsSystem() {
		return nil
	}
	owns, err := a.OwnsTeam(ctx, u.ID, leagueID, teamKey)
	if err != nil {
		return fmt.Errorf("check team owner: %w", err)
	}
	if owns {
		return nil
	}
	commish, err := a.IsCommissioner(ctx, u.ID, leagueID)
	if err != nil {
		return fmt.Errorf("check commissioner: %w", err)
	}
	if !commish {
		return models.ErrNotTeamOwner
	}
	return nil
}
