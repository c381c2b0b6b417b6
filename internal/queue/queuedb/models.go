package queuedb

import (
	"time"

	"github.com/dirops/authseed/internal/queue"
	"github.com/google/uuid"
)

type authUpdate struct {
	ID           uuid.UUID `db:"id"`
	Body         string    `db:"body"`
	Receipt      uuid.UUID `db:"receipt"`
	EnqueuedAt   time.Time `db:"enqueued_at"`
	VisibleAt    time.Time `db:"visible_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	DequeueCount int       `db:"dequeue_count"`
}

func toBusMessage(db authUpdate) queue.Message {
	return queue.Message{
		ID:           db.ID,
		Receipt:      db.Receipt,
		Body:         []byte(db.Body),
		DequeueCount: db.DequeueCount,
	}
}
