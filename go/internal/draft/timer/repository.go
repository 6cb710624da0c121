package timer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/draft/events"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/mcdev12/draftclock/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var timerEventColumns = []string{
	"id", "draft_id", "sequence", "event_type", "seconds_remaining",
	"original_duration", "pick_id", "triggered_by", "metadata", "created_at",
}

// OutboxWriter records an event for relay inside the caller's transaction.
type OutboxWriter interface {
	InsertTx(ctx context.Context, tx *sql.Tx, draftID uuid.UUID, eventType string, payload any) (uuid.UUID, error)
}

// Repository is the Postgres timer event log. An append writes the event,
// the durable schedule change and the outbox row in one transaction.
type Repository struct {
	db     *sql.DB
	outbox OutboxWriter
}

func NewRepository(db *sql.DB, outbox OutboxWriter) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
	}
}

func (r *Repository) Latest(ctx context.Context, draftID uuid.UUID) (*models.TimerEvent, error) {
	query, args, err := psql.
		Select(timerEventColumns...).
		From("timer_events").
		Where(sq.Eq{"draft_id": draftID}).
		OrderBy("sequence DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Latest query: %w", err)
	}

	ev, err := scanTimerEvent(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest timer event: %w", err)
	}
	return ev, nil
}

func (r *Repository) Append(ctx context.Context, req AppendRequest) (*models.TimerEvent, error) {
	ev := req.Event

	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		query, args, err := psql.
			Insert("timer_events").
			Columns(timerEventColumns...).
			Values(
				ev.ID,
				ev.DraftID,
				ev.Sequence,
				ev.EventType,
				ev.SecondsRemaining,
				ev.OriginalDuration,
				sqlutil.ToNullUUID(ev.PickID),
				ev.TriggeredBy,
				pqtype.NullRawMessage{RawMessage: ev.Metadata, Valid: len(ev.Metadata) > 0},
				ev.CreatedAt,
			).
			ToSql()
		if err != nil {
			return fmt.Errorf("build Append query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if sqlutil.IsUniqueViolation(err) {
				return fmt.Errorf("sequence %d already taken: %w", ev.Sequence, models.ErrConflict)
			}
			return fmt.Errorf("insert timer event: %w", err)
		}

		if err := r.applySchedule(ctx, tx, req); err != nil {
			return err
		}

		if _, err := r.outbox.InsertTx(ctx, tx, ev.DraftID, events.TypeTimerEvent, events.NewTimerEventPayload(ev)); err != nil {
			return fmt.Errorf("insert timer outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *Repository) applySchedule(ctx context.Context, tx *sql.Tx, req AppendRequest) error {
	var (
		query string
		args  []interface{}
		err   error
	)

	switch req.Schedule {
	case ScheduleArm:
		query, args, err = psql.
			Insert("timer_schedules").
			Columns("draft_id", "event_id", "sequence", "fire_at").
			Values(req.Event.DraftID, req.Event.ID, req.Event.Sequence, req.FireAt).
			Suffix("ON CONFLICT (draft_id) DO UPDATE SET event_id = EXCLUDED.event_id, sequence = EXCLUDED.sequence, fire_at = EXCLUDED.fire_at, updated_at = NOW()").
			ToSql()
	case ScheduleDisarm:
		query, args, err = psql.
			Delete("timer_schedules").
			Where(sq.Eq{"draft_id": req.Event.DraftID}).
			ToSql()
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("build schedule query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update timer schedule: %w", err)
	}
	return nil
}

// ListSchedules returns every armed expiry.
func (r *Repository) ListSchedules(ctx context.Context) ([]models.TimerSchedule, error) {
	query, args, err := psql.
		Select("draft_id", "event_id", "sequence", "fire_at").
		From("timer_schedules").
		OrderBy("fire_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build ListSchedules query: %w", err)
	}
	return r.querySchedules(ctx, query, args)
}

// DueSchedules returns armed expiries with fire_at at or before the given instant.
func (r *Repository) DueSchedules(ctx context.Context, before time.Time, limit int) ([]models.TimerSchedule, error) {
	builder := psql.
		Select("draft_id", "event_id", "sequence", "fire_at").
		From("timer_schedules").
		Where(sq.LtOrEq{"fire_at": before}).
		OrderBy("fire_at")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build DueSchedules query: %w", err)
	}
	return r.querySchedules(ctx, query, args)
}

func (r *Repository) querySchedules(ctx context.Context, query string, args []interface{}) ([]models.TimerSchedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timer schedules: %w", err)
	}
	defer rows.Close()

	var out []models.TimerSchedule
	for rows.Next() {
		var s models.TimerSchedule
		if err := rows.Scan(&s.DraftID, &s.EventID, &s.Sequence, &s.FireAt); err != nil {
			return nil, fmt.Errorf("scan timer schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanTimerEvent(row *sql.Row) (*models.TimerEvent, error) {
	var (
		ev       models.TimerEvent
		pickID   uuid.NullUUID
		metadata pqtype.NullRawMessage
	)
	err := row.Scan(
		&ev.ID,
		&ev.DraftID,
		&ev.Sequence,
		&ev.EventType,
		&ev.SecondsRemaining,
		&ev.OriginalDuration,
		&pickID,
		&ev.TriggeredBy,
		&metadata,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ev.PickID = sqlutil.FromNullUUID(pickID)
	if metadata.Valid {
		ev.Metadata = metadata.RawMessage
	}
	return &ev, nil
}
