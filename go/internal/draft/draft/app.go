package draft

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftclock/go/internal/auth"
	"github.com/mcdev12/draftclock/go/internal/draft/timer"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DraftRepository defines what the draft app layer needs from the draft repository
type DraftRepository interface {
	GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	GetPickByNumber(ctx context.Context, draftID uuid.UUID, totalPickNumber int) (*models.DraftPick, error)
	StartDraft(ctx context.Context, id uuid.UUID, at time.Time) (*StartOutcome, error)
	SetPaused(ctx context.Context, id uuid.UUID, paused bool, reason string, at time.Time) (*models.Draft, error)
}

// TimerControl is the part of the clock authority the lifecycle drives.
type TimerControl interface {
	CurrentState(ctx context.Context, draftID uuid.UUID) (timer.State, error)
	Start(ctx context.Context, req timer.StartRequest) (*models.TimerEvent, error)
	Pause(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error)
	Resume(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error)
	Reset(ctx context.Context, req timer.ResetRequest) ([]models.TimerEvent, error)
}

// App handles draft lifecycle business logic
type App struct {
	repo   DraftRepository
	authz  auth.Authorizer
	timers TimerControl
	clock  clockwork.Clock
}

// NewApp creates a new draft App
func NewApp(repo DraftRepository, authz auth.Authorizer, timers TimerControl, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:   repo,
		authz:  authz,
		timers: timers,
		clock:  clock,
	}
}

// GetDraft retrieves a draft by ID
func (a *App) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return a.repo.GetDraft(ctx, id)
}

// StartDraft opens the draft and puts the first open slot on the clock.
func (a *App) StartDraft(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error) {
	current, err := a.authorize(ctx, u, id, PhaseRunning)
	if err != nil {
		return nil, err
	}

	out, err := a.repo.StartDraft(ctx, id, a.clock.Now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", id.String()).
		Str("from", string(PhaseOf(current))).
		Str("to", string(PhaseOf(&out.Draft))).
		Int("current_pick", *out.Draft.CurrentPick).
		Msg("draft started")

	if out.FirstPick != nil && out.Draft.UseTimer {
		_, err := a.timers.Reset(ctx, timer.ResetRequest{
			DraftID:     id,
			PickID:      &out.FirstPick.ID,
			Seconds:     out.Draft.PickSeconds,
			AutoStart:   out.Draft.AutoStartTimer(),
			TriggeredBy: models.TriggeredBySystem,
		})
		if err != nil {
			log.Warn().Err(err).Str("draft_id", id.String()).Msg("failed to start clock for first pick")
		}
	}
	return &out.Draft, nil
}

// PauseDraft pauses the draft and its clock.
func (a *App) PauseDraft(ctx context.Context, u auth.User, id uuid.UUID, reason string) (*models.Draft, error) {
	if _, err := a.authorize(ctx, u, id, PhasePaused); err != nil {
		return nil, err
	}

	d, err := a.repo.SetPaused(ctx, id, true, reason, a.clock.Now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("draft_id", id.String()).Str("reason", reason).Msg("draft paused")

	if d.UseTimer {
		_, err := a.timers.Pause(ctx, id, models.TriggeredBySystem)
		if err != nil && !errors.Is(err, models.ErrTimerNotRunning) {
			log.Warn().Err(err).Str("draft_id", id.String()).Msg("failed to pause clock")
		}
	}
	return d, nil
}

// ResumeDraft resumes the draft. A paused clock resumes where it stopped; a clock
// that was reset while the draft was paused starts fresh for the pick on the clock.
func (a *App) ResumeDraft(ctx context.Context, u auth.User, id uuid.UUID) (*models.Draft, error) {
	if _, err := a.authorize(ctx, u, id, PhaseRunning); err != nil {
		return nil, err
	}

	d, err := a.repo.SetPaused(ctx, id, false, "", a.clock.Now())
	if err != nil {
		return nil, err
	}
	log.Info().Str("draft_id", id.String()).Msg("draft resumed")

	if d.UseTimer {
		if err := a.resumeClock(ctx, d); err != nil {
			log.Warn().Err(err).Str("draft_id", id.String()).Msg("failed to resume clock")
		}
	}
	return d, nil
}

func (a *App) resumeClock(ctx context.Context, d *models.Draft) error {
	st, err := a.timers.CurrentState(ctx, d.ID)
	if err != nil {
		return err
	}
	switch st.Status {
	case models.TimerStatusPaused:
		_, err = a.timers.Resume(ctx, d.ID, models.TriggeredBySystem)
		return err
	case models.TimerStatusStopped:
		if d.CurrentPick == nil || d.PickSeconds <= 0 {
			return nil
		}
		slot, err := a.repo.GetPickByNumber(ctx, d.ID, *d.CurrentPick)
		if err != nil {
			return err
		}
		_, err = a.timers.Start(ctx, timer.StartRequest{
			DraftID:     d.ID,
			PickID:      &slot.ID,
			Seconds:     d.PickSeconds,
			TriggeredBy: models.TriggeredBySystem,
		})
		return err
	default:
		return nil
	}
}

func (a *App) authorize(ctx context.Context, u auth.User, id uuid.UUID, to Phase) (*models.Draft, error) {
	d, err := a.repo.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireCommissioner(ctx, a.authz, u, d.LeagueID); err != nil {
		return nil, err
	}
	if err := validateStatusTransition(PhaseOf(d), to); err != nil {
		return nil, err
	}
	return d, nil
}

var allowedTransitions = map[Phase][]Phase{
	PhasePending:   {PhaseRunning},
	PhaseRunning:   {PhasePaused, PhaseCompleted},
	PhasePaused:    {PhaseRunning, PhaseCompleted},
	PhaseCompleted: {},
}

// validateStatusTransition validates if a status transition is allowed
func validateStatusTransition(from, to Phase) error {
	allowedNext, exists := allowedTransitions[from]
	if !exists {
		return fmt.Errorf("%w: unknown phase %s", models.ErrInvalidTransition, from)
	}
	for _, allowed := range allowedNext {
		if to == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", models.ErrInvalidTransition, from, to)
}
