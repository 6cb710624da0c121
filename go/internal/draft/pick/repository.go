package pick

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
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/mcdev12/draftclock/go/internal/sqlutil"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DraftColumns is the column list ScanDraft expects.
var DraftColumns = []string{
	"id", "league_id", "rounds", "total_picks", "status", "current_pick", "use_timer",
	"pick_seconds", "is_paused", "started_at", "completed_at", "created_at", "updated_at",
}

var pickColumns = []string{
	"id", "draft_id", "round_number", "pick_number", "total_pick_number", "team_key",
	"player_id", "is_picked", "is_keeper", "picked_at",
}

// OutboxWriter inserts an event row inside the caller's transaction.
type OutboxWriter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, draftID uuid.UUID, eventType string, payload any) (uuid.UUID, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ScanDraft scans a row selected with DraftColumns.
func ScanDraft(row rowScanner) (*models.Draft, error) {
	var (
		d           models.Draft
		status      string
		currentPick sql.NullInt32
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.LeagueID, &d.Rounds, &d.TotalPicks, &status, &currentPick, &d.UseTimer,
		&d.PickSeconds, &d.IsPaused, &startedAt, &completedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.DraftStatus(status)
	d.CurrentPick = sqlutil.FromSqlInt32(currentPick)
	d.StartedAt = sqlutil.FromSqlTime(startedAt)
	d.CompletedAt = sqlutil.FromSqlTime(completedAt)
	return &d, nil
}

func scanPick(row rowScanner) (*models.DraftPick, error) {
	var (
		p        models.DraftPick
		playerID uuid.NullUUID
		pickedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.DraftID, &p.RoundNumber, &p.PickNumber, &p.TotalPickNumber, &p.TeamKey,
		&playerID, &p.IsPicked, &p.IsKeeper, &pickedAt)
	if err != nil {
		return nil, err
	}
	p.PlayerID = sqlutil.FromNullUUID(playerID)
	p.PickedAt = sqlutil.FromSqlTime(pickedAt)
	return &p, nil
}

// Repository stores picks and moves the draft cursor. Every write locks the draft
// row first, so writes for one draft are serialized while different drafts proceed
// in parallel.
type Repository struct {
	db     *sql.DB
	outbox OutboxWriter
}

func NewRepository(db *sql.DB, outbox OutboxWriter) *Repository {
	return &Repository{db: db, outbox: outbox}
}

// GetDraft returns a draft by id.
func (r *Repository) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	return r.getDraft(ctx, r.db, draftID, false)
}

// GetPick returns a slot of a draft.
func (r *Repository) GetPick(ctx context.Context, draftID, pickID uuid.UUID) (*models.DraftPick, error) {
	return r.getPick(ctx, r.db, sq.Eq{"draft_id": draftID, "id": pickID}, false)
}

// GetPickByNumber returns the slot with the given overall number.
func (r *Repository) GetPickByNumber(ctx context.Context, draftID uuid.UUID, totalPickNumber int) (*models.DraftPick, error) {
	return r.getPick(ctx, r.db, sq.Eq{"draft_id": draftID, "total_pick_number": totalPickNumber}, false)
}

// ListPicks returns every slot of a draft in draft order.
func (r *Repository) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.DraftPick, error) {
	query, args, err := psql.Select(pickColumns...).
		From("draft_picks").
		Where(sq.Eq{"draft_id": draftID}).
		OrderBy("total_pick_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list picks: %w", models.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var picks []models.DraftPick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pick: %w", err)
		}
		picks = append(picks, *p)
	}
	return picks, rows.Err()
}

// ListAvailablePlayers returns undrafted players, best rank first.
func (r *Repository) ListAvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error) {
	qb := psql.Select("p.id", "p.full_name", "p.position", "p.rank").
		From("players p").
		Where(sq.Expr("NOT EXISTS (SELECT 1 FROM drafted_players dp WHERE dp.draft_id = ? AND dp.player_id = p.id)", draftID)).
		OrderBy("p.rank = 0", "p.rank", "p.full_name")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list available players: %w", models.ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var p models.Player
		if err := rows.Scan(&p.ID, &p.FullName, &p.Position, &p.Rank); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// MakePick fills a slot and, when it was the slot on the clock, advances the cursor
// to the next open slot or completes the draft. The pick, the drafted-player marker,
// the cursor and the outbox rows commit together.
func (r *Repository) MakePick(ctx context.Context, p MakePickParams) (*PickOutcome, error) {
	var out *PickOutcome
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		out, err = r.makePickTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, classify("make pick", err)
	}
	return out, nil
}

func (r *Repository) makePickTx(ctx context.Context, tx *sql.Tx, p MakePickParams) (*PickOutcome, error) {
	draft, err := r.getDraft(ctx, tx, p.DraftID, true)
	if err != nil {
		return nil, err
	}
	slot, err := r.getPick(ctx, tx, sq.Eq{"draft_id": p.DraftID, "id": p.PickID}, false)
	if err != nil {
		return nil, err
	}
	advance, err := checkTurn(draft, slot, p.IsKeeper, p.Override)
	if err != nil {
		return nil, err
	}

	filled, err := r.fillPick(ctx, tx, draft.ID, slot.ID, p.PlayerID, p.IsKeeper, p.At)
	if err != nil {
		return nil, err
	}

	out := &PickOutcome{Pick: *filled, Draft: *draft, Advanced: advance}
	if advance {
		moved, next, err := r.advanceCursor(ctx, tx, draft, filled.TotalPickNumber, p.At)
		if err != nil {
			return nil, err
		}
		out.Draft, out.NextPick = *moved, next
	}

	nextPick := 0
	if out.Draft.CurrentPick != nil {
		nextPick = *out.Draft.CurrentPick
	}
	_, err = r.outbox.InsertTx(ctx, tx, draft.ID, events.TypePickMade, events.PickMadePayload{
		PickID:          filled.ID.String(),
		TeamKey:         filled.TeamKey,
		PlayerID:        p.PlayerID.String(),
		RoundNumber:     filled.RoundNumber,
		PickNumber:      filled.PickNumber,
		TotalPickNumber: filled.TotalPickNumber,
		NextPick:        nextPick,
		IsKeeper:        filled.IsKeeper,
		Override:        p.Override && !advance,
		MadeAt:          p.At,
	})
	if err != nil {
		return nil, fmt.Errorf("insert PickMade outbox: %w", err)
	}

	if out.Completed() {
		_, err = r.outbox.InsertTx(ctx, tx, draft.ID, events.TypeDraftCompleted, events.DraftCompletedPayload{
			DraftID:     draft.ID.String(),
			CompletedAt: p.At,
			TotalPicks:  draft.TotalPicks,
		})
		if err != nil {
			return nil, fmt.Errorf("insert DraftCompleted outbox: %w", err)
		}
	}
	return out, nil
}

// fillPick is the single critical write of a pick: the conditional update on
// is_picked, then the drafted-player marker.
func (r *Repository) fillPick(ctx context.Context, tx *sql.Tx, draftID, pickID, playerID uuid.UUID, keeper bool, at time.Time) (*models.DraftPick, error) {
	query, args, err := psql.Update("draft_picks").
		Set("is_picked", true).
		Set("player_id", playerID).
		Set("picked_at", at).
		Set("is_keeper", keeper).
		Where(sq.Eq{"id": pickID, "draft_id": draftID, "is_picked": false}).
		Suffix("RETURNING " + strings.Join(pickColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	filled, err := scanPick(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPickAlreadyMade
	}
	if sqlutil.IsForeignKeyViolation(err) {
		return nil, fmt.Errorf("%w: unknown player %s", models.ErrInvalidArgument, playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("update pick: %w", err)
	}

	query, args, err = psql.Insert("drafted_players").
		Columns("draft_id", "player_id", "pick_id", "created_at").
		Values(draftID, playerID, pickID, at).
		Suffix("ON CONFLICT (draft_id, player_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert drafted player: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("insert drafted player: %w", err)
	} else if n == 0 {
		return nil, models.ErrPlayerAlreadyDrafted
	}
	return filled, nil
}

// advanceCursor moves current_pick from n to the next open slot after it, completing
// the draft when none is left. The update is conditional on the cursor still being n.
func (r *Repository) advanceCursor(ctx context.Context, tx *sql.Tx, draft *models.Draft, n int, at time.Time) (*models.Draft, *models.DraftPick, error) {
	query, args, err := psql.Select("COALESCE(MIN(total_pick_number), 0)").
		From("draft_picks").
		Where(sq.Eq{"draft_id": draft.ID, "is_picked": false}).
		Where(sq.Gt{"total_pick_number": n}).
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}
	var next int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&next); err != nil {
		return nil, nil, fmt.Errorf("find next open pick: %w", err)
	}
	completed := next == 0
	if completed {
		next = draft.TotalPicks + 1
	}

	ub := psql.Update("drafts").
		Set("current_pick", next).
		Set("updated_at", at).
		Where(sq.Eq{"id": draft.ID, "current_pick": n})
	if completed {
		ub = ub.Set("status", models.DraftStatusCompleted).Set("completed_at", at)
	}
	query, args, err = ub.Suffix("RETURNING " + strings.Join(DraftColumns, ", ")).ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build query: %w", err)
	}
	moved, err := ScanDraft(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: draft cursor moved", models.ErrConflict)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("advance cursor: %w", err)
	}
	if completed {
		return moved, nil, nil
	}

	nextPick, err := r.getPick(ctx, tx, sq.Eq{"draft_id": draft.ID, "total_pick_number": next}, false)
	if err != nil {
		return nil, nil, err
	}
	return moved, nextPick, nil
}

// VacatePick clears a filled slot. Deleting the most recently completed pick, the
// filled slot directly behind the cursor, rewinds the cursor onto it and reopens a
// completed draft. Any other deletion leaves the cursor and later picks alone.
func (r *Repository) VacatePick(ctx context.Context, draftID, pickID uuid.UUID, at time.Time) (*VacateOutcome, error) {
	var out *VacateOutcome
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		draft, err := r.getDraft(ctx, tx, draftID, true)
		if err != nil {
			return err
		}
		if draft.Status == models.DraftStatusPending || draft.CurrentPick == nil {
			return models.ErrDraftNotInProgress
		}
		slot, err := r.getPick(ctx, tx, sq.Eq{"draft_id": draftID, "id": pickID}, false)
		if err != nil {
			return err
		}
		if !slot.IsPicked {
			return models.ErrPickNotMade
		}

		latest, err := r.latestFilledBefore(ctx, tx, draftID, *draft.CurrentPick)
		if err != nil {
			return err
		}
		rewind := latest == slot.TotalPickNumber

		query, args, err := psql.Update("draft_picks").
			Set("is_picked", false).
			Set("player_id", nil).
			Set("picked_at", nil).
			Set("is_keeper", false).
			Where(sq.Eq{"id": pickID, "is_picked": true}).
			Suffix("RETURNING " + strings.Join(pickColumns, ", ")).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		cleared, err := scanPick(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrPickNotMade
		}
		if err != nil {
			return fmt.Errorf("clear pick: %w", err)
		}

		query, args, err = psql.Delete("drafted_players").
			Where(sq.Eq{"draft_id": draftID, "pick_id": pickID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete drafted player: %w", err)
		}

		out = &VacateOutcome{Pick: *cleared, Draft: *draft, Rewound: rewind}
		if rewind {
			query, args, err = psql.Update("drafts").
				Set("current_pick", slot.TotalPickNumber).
				Set("status", models.DraftStatusInProgress).
				Set("completed_at", nil).
				Set("updated_at", at).
				Where(sq.Eq{"id": draftID, "current_pick": *draft.CurrentPick}).
				Suffix("RETURNING " + strings.Join(DraftColumns, ", ")).
				ToSql()
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			moved, err := ScanDraft(tx.QueryRowContext(ctx, query, args...))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: draft cursor moved", models.ErrConflict)
			}
			if err != nil {
				return fmt.Errorf("rewind cursor: %w", err)
			}
			out.Draft = *moved
		}

		_, err = r.outbox.InsertTx(ctx, tx, draftID, events.TypePickVacated, events.PickVacatedPayload{
			PickID:          cleared.ID.String(),
			TotalPickNumber: cleared.TotalPickNumber,
			Rewound:         rewind,
			CurrentPick:     *out.Draft.CurrentPick,
			VacatedAt:       at,
		})
		if err != nil {
			return fmt.Errorf("insert PickVacated outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("vacate pick", err)
	}
	return out, nil
}

func (r *Repository) latestFilledBefore(ctx context.Context, tx *sql.Tx, draftID uuid.UUID, cursor int) (int, error) {
	query, args, err := psql.Select("COALESCE(MAX(total_pick_number), 0)").
		From("draft_picks").
		Where(sq.Eq{"draft_id": draftID, "is_picked": true}).
		Where(sq.Lt{"total_pick_number": cursor}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("find latest pick: %w", err)
	}
	return n, nil
}

// SetKeeper marks a slot as a keeper. With a player it fills an open slot the way
// MakePick does; without one it only flags or unflags an already filled slot.
func (r *Repository) SetKeeper(ctx context.Context, req KeeperRequest, at time.Time) (*PickOutcome, error) {
	if req.IsKeeper && req.PlayerID != nil {
		return r.MakePick(ctx, MakePickParams{
			DraftID:  req.DraftID,
			PickID:   req.PickID,
			PlayerID: *req.PlayerID,
			IsKeeper: true,
			At:       at,
		})
	}

	var out *PickOutcome
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		draft, err := r.getDraft(ctx, tx, req.DraftID, true)
		if err != nil {
			return err
		}
		slot, err := r.getPick(ctx, tx, sq.Eq{"draft_id": req.DraftID, "id": req.PickID}, true)
		if err != nil {
			return err
		}
		if req.IsKeeper && !slot.IsPicked {
			return fmt.Errorf("%w: a keeper needs a player", models.ErrInvalidArgument)
		}

		query, args, err := psql.Update("draft_picks").
			Set("is_keeper", req.IsKeeper).
			Where(sq.Eq{"id": slot.ID}).
			Suffix("RETURNING " + strings.Join(pickColumns, ", ")).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		updated, err := scanPick(tx.QueryRowContext(ctx, query, args...))
		if err != nil {
			return fmt.Errorf("update keeper: %w", err)
		}
		out = &PickOutcome{Pick: *updated, Draft: *draft}
		return nil
	})
	if err != nil {
		return nil, classify("set keeper", err)
	}
	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) getDraft(ctx context.Context, q querier, draftID uuid.UUID, forUpdate bool) (*models.Draft, error) {
	qb := psql.Select(DraftColumns...).From("drafts").Where(sq.Eq{"id": draftID})
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := ScanDraft(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrDraftNotFound
	}
	if err != nil {
		return nil, classify("get draft", err)
	}
	return d, nil
}

func (r *Repository) getPick(ctx context.Context, q querier, where sq.Eq, forUpdate bool) (*models.DraftPick, error) {
	qb := psql.Select(pickColumns...).From("draft_picks").Where(where)
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	p, err := scanPick(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrPickNotFound
	}
	if err != nil {
		return nil, classify("get pick", err)
	}
	return p, nil
}

// classify keeps taxonomy errors and reports anything else as an unavailable store.
func classify(op string, err error) error {
	for _, kind := range []error{
		models.ErrConflict,
		models.ErrInvalidTransition,
		models.ErrInvalidArgument,
		models.ErrNotFound,
		models.ErrUpstreamUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrUpstreamUnavailable, err)
}
