package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ErrEventNotPending is returned when an outbox row is missing or already sent.
var ErrEventNotPending = fmt.Errorf("%w: outbox event not found or already sent", models.ErrNotFound)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// InsertTx writes an outbox row inside the caller's transaction so the event is
// relayed if and only if the state change commits.
func (r *Repository) InsertTx(ctx context.Context, tx *sql.Tx, draftID uuid.UUID, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	if len(data) == 0 || string(data) == "null" {
		return uuid.Nil, fmt.Errorf("%w: empty %s payload", models.ErrInvalidArgument, eventType)
	}

	id := uuid.New()
	query, args, err := psql.
		Insert("draft_outbox").
		Columns("id", "draft_id", "event_type", "payload").
		Values(id, draftID, eventType, data).
		ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build InsertTx query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return id, nil
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error) {
	query, args, err := psql.
		Select("id", "draft_id", "event_type", "payload", "created_at").
		From("draft_outbox").
		Where(sq.Eq{"sent_at": nil}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build FetchUnsent query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		ev, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	query, args, err := psql.
		Select("id", "draft_id", "event_type", "payload", "created_at").
		From("draft_outbox").
		Where(sq.Eq{"id": id, "sent_at": nil}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build FetchByID query: %w", err)
	}

	ev, err := scanOutboxEvent(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return ev, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.
		Update("draft_outbox").
		Set("sent_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "sent_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build MarkSent query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From("draft_outbox").
		Where(sq.Eq{"sent_at": nil}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build CountPending query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending outbox events: %w", err)
	}
	return count, nil
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		ev      OutboxEvent
		payload []byte
	)
	if err := row.Scan(&ev.ID, &ev.DraftID, &ev.EventType, &payload, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Payload = payload
	return &ev, nil
}
