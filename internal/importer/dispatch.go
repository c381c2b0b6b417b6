package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/internal/queue"
	"github.com/dirops/authseed/internal/record"
)

// Dispatch enqueues one update message per candidate and then commits the
// run's state. Enqueues run concurrently behind a semaphore admitting half
// the configured maximum, so a large backlog ramps up instead of bursting.
// Failures are independent per message; any failure leaves state uncommitted
// so the next run recomputes the same delta.
func (imp *Importer) Dispatch(ctx context.Context, records []record.UserRecord, candidates []Candidate, firstRun bool) error {
	if len(candidates) == 0 {
		imp.log.Info(ctx, "no users to dispatch")
		return nil
	}

	if imp.cfg.DryRun {
		imp.log.Warn(ctx, "dry run, skipping dispatch and state commit", "wouldDispatch", len(candidates))
		return nil
	}

	ttl := imp.cfg.TTLDeltaRuns
	if firstRun {
		ttl = imp.cfg.TTLFirstRun
	}

	slots := imp.cfg.MaxDispatch / 2
	if slots < 1 {
		slots = 1
	}
	sem := make(chan struct{}, slots)

	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, cand := range candidates {
		// Take the slot before spawning so a large backlog never fans out
		// past the admission limit.
		sem <- struct{}{}
		wg.Add(1)

		go func(cand Candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := imp.send(ctx, cand, ttl); err != nil {
				failed.Add(1)
				imp.log.Error(ctx, "dispatch failed", "employeeNumber", cand.EmployeeNumber, "err", err)
			}
		}(cand)
	}

	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("dispatch: %d of %d messages failed", n, len(candidates))
	}

	if err := imp.commitState(ctx, records, candidates, firstRun); err != nil {
		return fmt.Errorf("commitState: %w", err)
	}

	return nil
}

func (imp *Importer) send(ctx context.Context, cand Candidate, ttl time.Duration) error {
	msg := queue.UpdateMessage{
		EmployeeID:   cand.EmployeeNumber,
		UserName:     cand.UserName,
		EmailAddress: cand.SecondaryEmail,
		PhoneNumber:  cand.PhoneNumber,
		HomePhone:    cand.HomePhoneNumber,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	if err := imp.queue.Send(ctx, body, ttl); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	return nil
}

// commitState persists the run. A first run records every parsed record so
// the next run has a full baseline; a delta run only touches the dispatched
// candidates.
func (imp *Importer) commitState(ctx context.Context, records []record.UserRecord, candidates []Candidate, firstRun bool) error {
	now := time.Now().UTC()

	if firstRun {
		for _, rec := range records {
			if err := imp.state.Create(ctx, stateBus.FromRecord(rec, now)); err != nil {
				return fmt.Errorf("create[%s]: %w", rec.EmployeeNumber, err)
			}
		}
		return nil
	}

	for _, cand := range candidates {
		st := stateBus.FromRecord(cand.UserRecord, now)

		if cand.IsInLastRun {
			if err := imp.state.Update(ctx, st); err != nil {
				return fmt.Errorf("update[%s]: %w", cand.EmployeeNumber, err)
			}
			continue
		}

		if err := imp.state.Create(ctx, st); err != nil {
			return fmt.Errorf("create[%s]: %w", cand.EmployeeNumber, err)
		}
	}

	return nil
}
