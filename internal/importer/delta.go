package importer

import (
	"context"
	"errors"
	"fmt"

	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/internal/record"
)

// Candidate is a record the delta engine decided needs a queued update,
// tagged with run metadata.
type Candidate struct {
	record.UserRecord

	// IsInLastRun reports whether persisted state existed for this record.
	IsInLastRun bool

	// UserWasRecreated reports that the backing directory account changed
	// identity since the last run. Recreated accounts are always forwarded
	// because the new account has no auth methods yet.
	UserWasRecreated bool
}

// Delta compares the parsed records against persisted state and returns the
// candidates that need an update. firstRun reports whether the state store
// was empty before this run.
func (imp *Importer) Delta(ctx context.Context, records []record.UserRecord) ([]Candidate, bool, error) {
	count, err := imp.state.Count(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("count: %w", err)
	}
	firstRun := count == 0

	var candidates []Candidate
	for _, rec := range records {
		cand, include, err := imp.classify(ctx, rec)
		if err != nil {
			return nil, false, err
		}
		if include {
			candidates = append(candidates, cand)
		}
	}

	return filterCandidates(candidates), firstRun, nil
}

// classify decides whether one record belongs in the delta.
func (imp *Importer) classify(ctx context.Context, rec record.UserRecord) (Candidate, bool, error) {
	prior, err := imp.state.QueryByEmployeeNumber(ctx, rec.EmployeeNumber)
	if err != nil {
		if errors.Is(err, stateBus.ErrStateNotFound) {
			return Candidate{UserRecord: rec, IsInLastRun: false}, true, nil
		}
		return Candidate{}, false, fmt.Errorf("queryByEmployeeNumber[%s]: %w", rec.EmployeeNumber, err)
	}

	if prior.PhoneNumber != rec.PhoneNumber ||
		prior.SecondaryEmail != rec.SecondaryEmail ||
		prior.HomePhoneNumber != rec.HomePhoneNumber {
		return Candidate{UserRecord: rec, IsInLastRun: true}, true, nil
	}

	if prior.DirectoryID != rec.DirectoryID {
		return Candidate{UserRecord: rec, IsInLastRun: true, UserWasRecreated: true}, true, nil
	}

	return Candidate{}, false, nil
}

// filterCandidates applies the final contact-info filter: new and changed
// records must carry at least one contact field, recreated records are always
// forwarded.
func filterCandidates(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, cand := range candidates {
		if cand.UserWasRecreated || cand.HasContactInfo() {
			out = append(out, cand)
		}
	}
	return out
}
