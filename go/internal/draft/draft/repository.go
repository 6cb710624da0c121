package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/draft/pick"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/mcdev12/draftclock/go/internal/sqlutil"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Repository struct {
	db     *sql.DB
	outbox pick.OutboxWriter
	picks  *pick.Repository
}

func NewRepository(db *sql.DB, outbox pick.OutboxWriter) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
		picks:  pick.NewRepository(db, outbox),
	}
}

func (r *Repository) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	return r.picks.GetDraft(ctx, id)
}

func (r *Repository) GetPickByNumber(ctx context.Context, draftID uuid.UUID, totalPickNumber int) (*models.DraftPick, error) {
	return r.picks.GetPickByNumber(ctx, draftID, totalPickNumber)
}

// StartDraft moves a pending draft to in progress with the cursor on its first open
// slot. Slots filled by keepers before the start are skipped; a board made entirely
// of keepers completes at once.
func (r *Repository) StartDraft(ctx context.Context, id uuid.UUID, at time.Time) (*StartOutcome, error) {
	var out *StartOutcome
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status != models.DraftStatusPending {
			return fmt.Errorf("%w: draft is %s", models.ErrInvalidTransition, d.Status)
		}

		query, args, err := psql.Select("COALESCE(MIN(total_pick_number), 0)").
			From("draft_picks").
			Where(sq.Eq{"draft_id": id, "is_picked": false}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		var first int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&first); err != nil {
			return fmt.Errorf("find first open pick: %w", err)
		}

		ub := psql.Update("drafts").
			Set("started_at", at).
			Set("updated_at", at).
			Set("is_paused", false).
			Where(sq.Eq{"id": id, "status": models.DraftStatusPending})
		if first == 0 {
			ub = ub.Set("status", models.DraftStatusCompleted).
				Set("current_pick", d.TotalPicks+1).
				Set("completed_at", at)
		} else {
			ub = ub.Set("status", models.DraftStatusInProgress).
				Set("current_pick", first)
		}
		started, err := updateDraft(ctx, tx, ub)
		if err != nil {
			return err
		}

		out = &StartOutcome{Draft: *started}
		if first != 0 {
			if out.FirstPick, err = r.picks.GetPickByNumber(ctx, id, first); err != nil {
				return err
			}
		}

		_, err = r.outbox.InsertTx(ctx, tx, id, events.TypeDraftStarted, events.DraftStartedPayload{
			DraftID:     id.String(),
			StartedAt:   at,
			TotalRounds: started.Rounds,
			TotalPicks:  started.TotalPicks,
			CurrentPick: *started.CurrentPick,
		})
		if err != nil {
			return fmt.Errorf("insert DraftStarted outbox: %w", err)
		}
		if started.Status == models.DraftStatusCompleted {
			_, err = r.outbox.InsertTx(ctx, tx, id, events.TypeDraftCompleted, events.DraftCompletedPayload{
				DraftID:     id.String(),
				CompletedAt: at,
				TotalPicks:  started.TotalPicks,
			})
			if err != nil {
				return fmt.Errorf("insert DraftCompleted outbox: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetPaused flips is_paused on an in-progress draft.
func (r *Repository) SetPaused(ctx context.Context, id uuid.UUID, paused bool, reason string, at time.Time) (*models.Draft, error) {
	var out *models.Draft
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		d, err := lockDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if d.Status != models.DraftStatusInProgress || d.IsPaused == paused {
			return fmt.Errorf("%w: draft is %s", models.ErrInvalidTransition, PhaseOf(d))
		}

		out, err = updateDraft(ctx, tx, psql.Update("drafts").
			Set("is_paused", paused).
			Set("updated_at", at).
			Where(sq.Eq{"id": id}))
		if err != nil {
			return err
		}

		if paused {
			_, err = r.outbox.InsertTx(ctx, tx, id, events.TypeDraftPaused, events.DraftPausedPayload{
				DraftID:  id.String(),
				PausedAt: at,
				Reason:   reason,
			})
		} else {
			_, err = r.outbox.InsertTx(ctx, tx, id, events.TypeDraftResumed, events.DraftResumedPayload{
				DraftID:   id.String(),
				ResumedAt: at,
			})
		}
		if err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lockDraft(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Draft, error) {
	query, args, err := psql.Select(pick.DraftColumns...).
		From("drafts").
		Where(sq.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := pick.ScanDraft(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDraftNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock draft: %w", models.ErrUpstreamUnavailable, err)
	}
	return d, nil
}

func updateDraft(ctx context.Context, tx *sql.Tx, ub sq.UpdateBuilder) (*models.Draft, error) {
	query, args, err := ub.Suffix("RETURNING " + strings.Join(pick.DraftColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := pick.ScanDraft(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: draft changed concurrently", models.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update draft: %w", models.ErrUpstreamUnavailable, err)
	}
	return d, nil
}
