package pick

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

// PickRepository defines what the pick app layer needs from the pick repository
type PickRepository interface {
	GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error)
	GetPick(ctx context.Context, draftID, pickID uuid.UUID) (*models.DraftPick, error)
	GetPickByNumber(ctx context.Context, draftID uuid.UUID, totalPickNumber int) (*models.DraftPick, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error)
	ListAvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error)
	MakePick(ctx context.Context, p MakePickParams) (*PickOutcome, error)
	VacatePick(ctx context.Context, draftID, pickID uuid.UUID, at time.Time) (*VacateOutcome, error)
	SetKeeper(ctx context.Context, req KeeperRequest, at time.Time) (*PickOutcome, error)
}

// TimerControl is the part of the clock authority the engine drives.
type TimerControl interface {
	Start(ctx context.Context, req timer.StartRequest) (*models.TimerEvent, error)
	Pause(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error)
	Resume(ctx context.Context, draftID uuid.UUID, by models.TriggeredBy) (*models.TimerEvent, error)
	Reset(ctx context.Context, req timer.ResetRequest) ([]models.TimerEvent, error)
}

// App is the pick progression engine. It is authoritative over turn order; the
// clock follows it and a clock failure never fails a pick.
type App struct {
	repo   PickRepository
	authz  auth.Authorizer
	timers TimerControl
	policy ExpiryPolicy
	clock  clockwork.Clock
}

type Option func(*App)

func WithPolicy(p ExpiryPolicy) Option {
	return func(a *App) { a.policy = p }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// NewApp creates a new pick App
func NewApp(repo PickRepository, authz auth.Authorizer, timers TimerControl, opts ...Option) *App {
	a := &App{
		repo:   repo,
		authz:  authz,
		timers: timers,
		policy: NoopPolicy{},
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SubmitPick fills the slot on the clock for its owner or the commissioner. With
// Override a commissioner may refill a vacated slot behind the cursor.
func (a *App) SubmitPick(ctx context.Context, u auth.User, req SubmitPickRequest) (*models.DraftPick, error) {
	if req.PickID == uuid.Nil || req.PlayerID == uuid.Nil {
		return nil, fmt.Errorf("%w: pick_id and player_id are required", models.ErrInvalidArgument)
	}

	draft, err := a.repo.GetDraft(ctx, req.DraftID)
	if err != nil {
		return nil, err
	}
	slot, err := a.repo.GetPick(ctx, req.DraftID, req.PickID)
	if err != nil {
		return nil, err
	}
	if req.Override {
		err = auth.RequireCommissioner(ctx, a.authz, u, draft.LeagueID)
	} else {
		err = auth.RequireTeamOrCommissioner(ctx, a.authz, u, draft.LeagueID, slot.TeamKey)
	}
	if err != nil {
		return nil, err
	}

	out, err := a.repo.MakePick(ctx, MakePickParams{
		DraftID:  req.DraftID,
		PickID:   req.PickID,
		PlayerID: req.PlayerID,
		Override: req.Override,
		At:       a.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", req.DraftID.String()).
		Str("pick_id", req.PickID.String()).
		Str("player_id", req.PlayerID.String()).
		Int("total_pick_number", out.Pick.TotalPickNumber).
		Bool("advanced", out.Advanced).
		Bool("completed", out.Completed()).
		Msg("pick made")

	a.afterPick(ctx, out)
	return &out.Pick, nil
}

// SubmitSystemPick makes a pick on behalf of the server, e.g. from an expiry policy.
func (a *App) SubmitSystemPick(ctx context.Context, draftID, pickID, playerID uuid.UUID) (*models.DraftPick, error) {
	return a.SubmitPick(ctx, auth.SystemUser, SubmitPickRequest{DraftID: draftID, PickID: pickID, PlayerID: playerID})
}

// AvailablePlayers lists undrafted players, best rank first.
func (a *App) AvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error) {
	return a.repo.ListAvailablePlayers(ctx, draftID, limit)
}

// ListPicks returns the draft board.
func (a *App) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	return a.repo.ListPicks(ctx, draftID)
}

// DeletePick vacates a filled slot (commissioner only). Only the most recently
// completed pick rewinds the cursor, and then the clock restarts for it.
func (a *App) DeletePick(ctx context.Context, u auth.User, draftID, pickID uuid.UUID) (*VacateOutcome, error) {
	draft, err := a.repo.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireCommissioner(ctx, a.authz, u, draft.LeagueID); err != nil {
		return nil, err
	}

	out, err := a.repo.VacatePick(ctx, draftID, pickID, a.clock.Now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Str("pick_id", pickID.String()).
		Bool("rewound", out.Rewound).
		Msg("pick vacated")

	if out.Rewound && out.Draft.UseTimer {
		a.resetClock(ctx, &out.Draft, &out.Pick)
	}
	return out, nil
}

// SetKeeperStatus flags a slot as a keeper (commissioner only).
func (a *App) SetKeeperStatus(ctx context.Context, u auth.User, req KeeperRequest) (*models.DraftPick, error) {
	draft, err := a.repo.GetDraft(ctx, req.DraftID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireCommissioner(ctx, a.authz, u, draft.LeagueID); err != nil {
		return nil, err
	}

	out, err := a.repo.SetKeeper(ctx, req, a.clock.Now())
	if err != nil {
		return nil, err
	}
	a.afterPick(ctx, out)
	return &out.Pick, nil
}

// StartTimer starts the clock (commissioner only).
func (a *App) StartTimer(ctx context.Context, u auth.User, req StartTimerRequest) (*models.TimerEvent, error) {
	draft, err := a.authorizeTimer(ctx, u, req.DraftID)
	if err != nil {
		return nil, err
	}
	if draft.Status != models.DraftStatusInProgress || draft.CurrentPick == nil {
		return nil, models.ErrDraftNotInProgress
	}

	seconds := req.Seconds
	if seconds == 0 {
		seconds = draft.PickSeconds
	}
	pickID := req.PickID
	if pickID == nil {
		cur, err := a.repo.GetPickByNumber(ctx, draft.ID, *draft.CurrentPick)
		if err != nil {
			return nil, err
		}
		pickID = &cur.ID
	}

	return a.timers.Start(ctx, timer.StartRequest{
		DraftID:     draft.ID,
		PickID:      pickID,
		Seconds:     seconds,
		Override:    req.Override,
		TriggeredBy: models.TriggeredByUser,
	})
}

// PauseTimer pauses the clock (commissioner only).
func (a *App) PauseTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error) {
	if _, err := a.authorizeTimer(ctx, u, draftID); err != nil {
		return nil, err
	}
	return a.timers.Pause(ctx, draftID, models.TriggeredByUser)
}

// ResumeTimer resumes the clock (commissioner only).
func (a *App) ResumeTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.TimerEvent, error) {
	if _, err := a.authorizeTimer(ctx, u, draftID); err != nil {
		return nil, err
	}
	return a.timers.Resume(ctx, draftID, models.TriggeredByUser)
}

func (a *App) authorizeTimer(ctx context.Context, u auth.User, draftID uuid.UUID) (*models.Draft, error) {
	draft, err := a.repo.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if err := auth.RequireCommissioner(ctx, a.authz, u, draft.LeagueID); err != nil {
		return nil, err
	}
	return draft, nil
}

// OnExpire runs the expiry policy when the clock runs out on the pick that is
// still on the clock. Expiries for turns that moved on are ignored.
func (a *App) OnExpire(ctx context.Context, ev models.TimerEvent) error {
	logger := log.With().Str("draft_id", ev.DraftID.String()).Int64("sequence", ev.Sequence).Logger()
	if ev.PickID == nil {
		logger.Debug().Msg("expired clock has no pick")
		return nil
	}

	draft, err := a.repo.GetDraft(ctx, ev.DraftID)
	if err != nil {
		return err
	}
	if draft.Status != models.DraftStatusInProgress || draft.IsPaused || draft.CurrentPick == nil {
		logger.Debug().Str("status", string(draft.Status)).Bool("paused", draft.IsPaused).Msg("ignoring expiry")
		return nil
	}
	slot, err := a.repo.GetPick(ctx, ev.DraftID, *ev.PickID)
	if err != nil {
		return err
	}
	if slot.IsPicked || slot.TotalPickNumber != *draft.CurrentPick {
		logger.Debug().Int("total_pick_number", slot.TotalPickNumber).Msg("expired pick is no longer on the clock")
		return nil
	}

	logger.Info().Str("policy", a.policy.Name()).Str("pick_id", slot.ID.String()).Msg("running expiry policy")
	return a.policy.OnExpire(ctx, a, ExpiredTurn{Draft: *draft, Pick: *slot, Event: ev})
}

// afterPick moves the clock along with the cursor. A completed draft gets no new
// turn; a clock still running is paused.
func (a *App) afterPick(ctx context.Context, out *PickOutcome) {
	if !out.Advanced || !out.Draft.UseTimer {
		return
	}
	if out.Completed() {
		a.stopClock(ctx, out.Draft.ID)
		return
	}
	if out.NextPick != nil {
		a.resetClock(ctx, &out.Draft, out.NextPick)
	}
}

func (a *App) resetClock(ctx context.Context, draft *models.Draft, slot *models.DraftPick) {
	_, err := a.timers.Reset(ctx, timer.ResetRequest{
		DraftID:     draft.ID,
		PickID:      &slot.ID,
		Seconds:     draft.PickSeconds,
		AutoStart:   draft.AutoStartTimer(),
		TriggeredBy: models.TriggeredBySystem,
	})
	if err != nil {
		log.Warn().Err(err).
			Str("draft_id", draft.ID.String()).
			Str("pick_id", slot.ID.String()).
			Msg("failed to reset clock for next pick")
	}
}

func (a *App) stopClock(ctx context.Context, draftID uuid.UUID) {
	_, err := a.timers.Pause(ctx, draftID, models.TriggeredBySystem)
	if err != nil && !errors.Is(err, models.ErrTimerNotRunning) {
		log.Warn().Err(err).Str("draft_id", draftID.String()).Msg("failed to stop clock for completed draft")
	}
}
