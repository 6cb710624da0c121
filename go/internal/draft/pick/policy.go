package pick

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ExpiredTurn is the slot whose clock ran out.
type ExpiredTurn struct {
	Draft models.Draft
	Pick  models.DraftPick
	Event models.TimerEvent
}

// Engine is what an expiry policy may do to the draft.
type Engine interface {
	AvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error)
	SubmitSystemPick(ctx context.Context, draftID, pickID, playerID uuid.UUID) (*models.DraftPick, error)
}

// ExpiryPolicy decides what happens when the clock runs out on a turn.
type ExpiryPolicy interface {
	Name() string
	OnExpire(ctx context.Context, engine Engine, turn ExpiredTurn) error
}

// NoopPolicy leaves the turn open for the commissioner to resolve.
type NoopPolicy struct{}

func (NoopPolicy) Name() string { return "none" }

func (NoopPolicy) OnExpire(_ context.Context, _ Engine, turn ExpiredTurn) error {
	log.Info().
		Str("draft_id", turn.Draft.ID.String()).
		Str("pick_id", turn.Pick.ID.String()).
		Int("total_pick_number", turn.Pick.TotalPickNumber).
		Msg("pick clock expired, waiting for commissioner")
	return nil
}

// PlayerSelector chooses a player for an expired turn from the available pool.
type PlayerSelector interface {
	Select(turn ExpiredTurn, available []models.Player) models.Player
}

// BestAvailableSelector takes the best ranked player. The pool arrives ranked.
type BestAvailableSelector struct{}

func (BestAvailableSelector) Select(_ ExpiredTurn, available []models.Player) models.Player {
	return available[0]
}

// RandomSelector uses random choice for the player.
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSelector constructs a RandomSelector with its own source. A nil source is
// seeded from the current time.
func NewRandomSelector(src rand.Source) *RandomSelector {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &RandomSelector{rng: rand.New(src)}
}

func (s *RandomSelector) Select(_ ExpiredTurn, available []models.Player) models.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return available[s.rng.Intn(len(available))]
}

// maxAutoPickAttempts bounds reloads of the player pool after the chosen player is
// drafted by someone else.
const maxAutoPickAttempts = 2

// AutoPickPolicy drafts a player for the team on the clock.
type AutoPickPolicy struct {
	selector   PlayerSelector
	candidates int
}

// NewAutoPickPolicy picks among the top candidates available players.
func NewAutoPickPolicy(selector PlayerSelector, candidates int) *AutoPickPolicy {
	if candidates <= 0 {
		candidates = 25
	}
	return &AutoPickPolicy{selector: selector, candidates: candidates}
}

func (p *AutoPickPolicy) Name() string { return "autopick" }

func (p *AutoPickPolicy) OnExpire(ctx context.Context, engine Engine, turn ExpiredTurn) error {
	logger := log.With().
		Str("draft_id", turn.Draft.ID.String()).
		Str("pick_id", turn.Pick.ID.String()).
		Str("team_key", turn.Pick.TeamKey).
		Logger()

	for attempt := 1; ; attempt++ {
		available, err := engine.AvailablePlayers(ctx, turn.Draft.ID, p.candidates)
		if err != nil {
			return fmt.Errorf("list players: %w", err)
		}
		if len(available) == 0 {
			logger.Warn().Msg("auto-pick found no available players")
			return nil
		}

		choice := p.selector.Select(turn, available)
		_, err = engine.SubmitSystemPick(ctx, turn.Draft.ID, turn.Pick.ID, choice.ID)
		switch {
		case err == nil:
			logger.Info().
				Str("player_id", choice.ID.String()).
				Str("player", choice.FullName).
				Int("attempt", attempt).
				Msg("auto-pick made")
			return nil

		case errors.Is(err, models.ErrPlayerAlreadyDrafted):
			// The choice was drafted after the pool was read; the turn is still open.
			if attempt >= maxAutoPickAttempts {
				return fmt.Errorf("auto-pick: %w", err)
			}
			logger.Info().Str("player_id", choice.ID.String()).Msg("auto-pick choice taken, reloading pool")

		case errors.Is(err, models.ErrConflict):
			// Pick already made, cursor moved or draft no longer in progress.
			logger.Info().Err(err).Msg("turn resolved before auto-pick")
			return nil

		default:
			return fmt.Errorf("auto-pick: %w", err)
		}
	}
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (ExpiryPolicy, error) {
	switch name {
	case "", "none":
		return NoopPolicy{}, nil
	case "autopick", "autopick-best":
		return NewAutoPickPolicy(BestAvailableSelector{}, 1), nil
	case "autopick-random":
		return NewAutoPickPolicy(NewRandomSelector(nil), 0), nil
	default:
		return nil, fmt.Errorf("%w: unknown expiry policy %q", models.ErrInvalidArgument, name)
	}
}
