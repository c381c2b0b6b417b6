// Package importer implements the CSV import pipeline: read and normalize
// user records, compute the delta against persisted state, and dispatch
// update messages to the queue with bounded concurrency.
package importer

import (
	"context"
	"time"

	"github.com/dirops/authseed/internal/directory"
	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/pkg/logger"
)

// QueueSender is the transport contract the dispatcher needs.
type QueueSender interface {
	Send(ctx context.Context, body []byte, ttl time.Duration) error
}

// DirectoryResolver is the slice of the directory client the importer uses to
// enrich records with the backing directory identity.
type DirectoryResolver interface {
	UserByNameAndEmployeeNumber(ctx context.Context, userName string, employeeNumber string) (directory.User, error)
}

// Config holds importer tunables.
type Config struct {
	// MaxDispatch caps concurrent enqueue operations. The dispatcher admits
	// half of it at a time.
	MaxDispatch int

	// TTLFirstRun is the message time-to-live when no prior state exists.
	TTLFirstRun time.Duration

	// TTLDeltaRuns is the message time-to-live for delta runs.
	TTLDeltaRuns time.Duration

	// DryRun suppresses enqueues and the state commit. The run still parses,
	// computes the delta, and logs what it would have sent.
	DryRun bool
}

// Importer runs one import invocation.
type Importer struct {
	log   *logger.Logger
	state *stateBus.Bus
	queue QueueSender
	dir   DirectoryResolver
	cfg   Config
}

// New constructs an importer. The directory resolver may be nil, in which
// case records are not enriched and recreation detection is disabled.
func New(log *logger.Logger, state *stateBus.Bus, queue QueueSender, dir DirectoryResolver, cfg Config) *Importer {
	if cfg.MaxDispatch <= 0 {
		cfg.MaxDispatch = 32
	}
	if cfg.TTLFirstRun <= 0 {
		cfg.TTLFirstRun = 12 * time.Hour
	}
	if cfg.TTLDeltaRuns <= 0 {
		cfg.TTLDeltaRuns = 30 * time.Minute
	}

	return &Importer{
		log:   log,
		state: state,
		queue: queue,
		dir:   dir,
		cfg:   cfg,
	}
}

// Run executes one full import: read, delta, dispatch, commit.
func (imp *Importer) Run(ctx context.Context, csvPath string) error {
	started := time.Now()

	records, err := imp.ReadFile(ctx, csvPath)
	if err != nil {
		return err
	}

	imp.log.Info(ctx, "csv file read", "path", csvPath, "records", len(records))

	candidates, firstRun, err := imp.Delta(ctx, records)
	if err != nil {
		return err
	}

	imp.log.Info(ctx, "delta computed", "candidates", len(candidates), "firstRun", firstRun)

	if err := imp.Dispatch(ctx, records, candidates, firstRun); err != nil {
		return err
	}

	imp.log.Info(ctx, "import complete", "elapsed", time.Since(started).String())

	return nil
}
