// Package consumer pulls a batch of queued update messages and applies each
// one against the directory. It is a batch-job runner: one receive, one wave
// of concurrent per-message work, then it returns.
package consumer

import (
	"context"
	"sync"

	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/metrics"
	"github.com/dirops/authseed/internal/queue"
	"github.com/dirops/authseed/pkg/logger"
	"github.com/google/uuid"
)

// poisonCutoff is the dequeue count at which a failing message is deleted
// instead of being left for redelivery.
const poisonCutoff = 5

// QueueClient is the transport contract the consumer needs.
type QueueClient interface {
	Receive(ctx context.Context, max int) ([]queue.Message, error)
	Delete(ctx context.Context, id uuid.UUID, receipt uuid.UUID) error
}

// DirectoryClient is the slice of the directory client the consumer uses.
type DirectoryClient interface {
	UserByPrincipalName(ctx context.Context, upn string) (directory.User, error)
	UserByNameAndEmployeeNumber(ctx context.Context, userName string, employeeNumber string) (directory.User, error)
	EmailMethods(ctx context.Context, userID string) ([]directory.EmailMethod, error)
	PhoneMethods(ctx context.Context, userID string) ([]directory.PhoneMethod, error)
	AddEmailMethod(ctx context.Context, userID string, emailAddress string) (directory.AddOutcome, error)
	AddPhoneMethod(ctx context.Context, userID string, phoneNumber string) (directory.AddOutcome, error)
}

// Config holds consumer tunables.
type Config struct {
	// MaxMessages is how many messages one batch run asks for. Clipped to
	// the transport cap.
	MaxMessages int
}

type Consumer struct {
	log     *logger.Logger
	queue   QueueClient
	dir     DirectoryClient
	metrics *metrics.Metrics
	cfg     Config
}

func New(log *logger.Logger, qc QueueClient, dir DirectoryClient, m *metrics.Metrics, cfg Config) *Consumer {
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > queue.MaxReceive {
		cfg.MaxMessages = queue.MaxReceive
	}

	return &Consumer{
		log:     log,
		queue:   qc,
		dir:     dir,
		metrics: m,
		cfg:     cfg,
	}
}

// RunBatch receives one batch and processes every message concurrently.
// Returns the number of messages received; zero means the queue was empty
// and no processing started. Per-message failures never fail the batch.
func (c *Consumer) RunBatch(ctx context.Context) (int, error) {
	c.log.Info(ctx, "receiving messages from queue", "max", c.cfg.MaxMessages)

	msgs, err := c.queue.Receive(ctx, c.cfg.MaxMessages)
	if err != nil {
		return 0, err
	}

	if len(msgs) == 0 {
		c.log.Warn(ctx, "no messages found in queue")
		return 0, nil
	}

	c.log.Info(ctx, "processing messages", "count", len(msgs))

	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)

		go func(msg queue.Message) {
			defer wg.Done()
			c.process(ctx, msg)
		}(msg)
	}

	wg.Wait()

	return len(msgs), nil
}
