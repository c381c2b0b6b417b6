// Package queuedb implements the update queue on top of postgres. Receives
// lock candidate rows with SKIP LOCKED so concurrent consumers never hand out
// the same message twice.
package queuedb

import (
	"context"
	"fmt"
	"time"

	"github.com/dirops/authseed/internal/queue"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/trace"
)

type Store struct {
	db         *sqlx.DB
	tracer     trace.Tracer
	visibility time.Duration
}

// NewStore constructs a queue store. Received messages stay invisible to
// other consumers for the visibility window.
func NewStore(db *sqlx.DB, tracer trace.Tracer, visibility time.Duration) *Store {
	return &Store{
		db:         db,
		tracer:     tracer,
		visibility: visibility,
	}
}

// Send enqueues one message with the given time-to-live. Expired messages are
// never delivered and get purged on the next receive.
func (s *Store) Send(ctx context.Context, body []byte, ttl time.Duration) error {
	const q = `
	INSERT INTO auth_updates (id,body,receipt,enqueued_at,visible_at,expires_at,dequeue_count)
	VALUES (:id,:body,:receipt,:enqueued_at,:visible_at,:expires_at,0)
	`

	ctx, span := s.tracer.Start(ctx, "queue.store.send")
	defer span.End()

	now := time.Now().UTC()
	data := authUpdate{
		ID:         uuid.New(),
		Body:       string(body),
		Receipt:    uuid.New(),
		EnqueuedAt: now,
		VisibleAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if _, err := s.db.NamedExecContext(ctx, q, data); err != nil {
		return fmt.Errorf("namedExecContext: %w", err)
	}

	return nil
}

// Receive dequeues up to max messages, capped at queue.MaxReceive. Each
// returned message gets a fresh receipt, an incremented dequeue count, and is
// hidden from other consumers until the visibility window passes. An empty
// slice means the queue has no visible messages.
func (s *Store) Receive(ctx context.Context, max int) ([]queue.Message, error) {
	const q = `
	UPDATE auth_updates
	SET
		receipt = gen_random_uuid(),
		visible_at = now() + :visibility * interval '1 second',
		dequeue_count = dequeue_count + 1
	WHERE id IN (
		SELECT id FROM auth_updates
		WHERE visible_at <= now() AND expires_at > now()
		ORDER BY enqueued_at
		LIMIT :max
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id,body,receipt,enqueued_at,visible_at,expires_at,dequeue_count;
	`

	ctx, span := s.tracer.Start(ctx, "queue.store.receive")
	defer span.End()

	if max > queue.MaxReceive {
		max = queue.MaxReceive
	}

	if err := s.purgeExpired(ctx); err != nil {
		return nil, fmt.Errorf("purgeExpired: %w", err)
	}

	data := map[string]any{
		"visibility": s.visibility.Seconds(),
		"max":        max,
	}

	rows, err := s.db.NamedQueryContext(ctx, q, data)
	if err != nil {
		return nil, fmt.Errorf("namedQueryContext: %w", err)
	}
	defer rows.Close()

	var msgs []queue.Message
	for rows.Next() {
		var row authUpdate
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("structScan: %w", err)
		}
		msgs = append(msgs, toBusMessage(row))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return msgs, nil
}

// Delete acks a message. The receipt must match the one issued by the most
// recent receive, otherwise the message was redelivered and the ack is stale.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, receipt uuid.UUID) error {
	const q = `DELETE FROM auth_updates WHERE id = :id AND receipt = :receipt;`

	ctx, span := s.tracer.Start(ctx, "queue.store.delete")
	defer span.End()

	data := map[string]any{
		"id":      id,
		"receipt": receipt,
	}

	res, err := s.db.NamedExecContext(ctx, q, data)
	if err != nil {
		return fmt.Errorf("namedExecContext: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rowsAffected: %w", err)
	}
	if n == 0 {
		return queue.ErrMessageNotFound
	}

	return nil
}

// Count reports the number of messages currently stored, visible or not.
func (s *Store) Count(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) AS count FROM auth_updates;`

	ctx, span := s.tracer.Start(ctx, "queue.store.count")
	defer span.End()

	var out struct {
		Count int `db:"count"`
	}

	rows, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return 0, fmt.Errorf("namedQueryContext: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, fmt.Errorf("count: no rows")
	}
	if err := rows.StructScan(&out); err != nil {
		return 0, fmt.Errorf("structScan: %w", err)
	}

	return out.Count, nil
}

func (s *Store) purgeExpired(ctx context.Context) error {
	const q = `DELETE FROM auth_updates WHERE expires_at <= now();`

	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("execContext: %w", err)
	}

	return nil
}
