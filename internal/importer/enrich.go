package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dirops/authseed/internal/directory"
)

// EnrichExisting backfills the directory identity of every persisted record.
// Intended as a one-off maintenance mode for state databases created before
// directory enrichment existed. Lookup failures are logged and skipped so a
// single bad record never aborts the sweep.
func (imp *Importer) EnrichExisting(ctx context.Context) error {
	if imp.dir == nil {
		return errors.New("no directory resolver configured")
	}

	states, err := imp.state.QueryAll(ctx)
	if err != nil {
		return fmt.Errorf("queryAll: %w", err)
	}

	imp.log.Info(ctx, "enriching existing users", "count", len(states))

	const progressEvery = 100
	updated := 0

	for i, st := range states {
		if err := ctx.Err(); err != nil {
			return err
		}

		usr, err := imp.dir.UserByNameAndEmployeeNumber(ctx, st.UserName, st.EmployeeNumber)
		if err != nil {
			if !errors.Is(err, directory.ErrUserNotFound) {
				imp.log.Warn(ctx, "directory lookup failed", "employeeNumber", st.EmployeeNumber, "err", err)
			}
			continue
		}

		if usr.ID == st.DirectoryID {
			continue
		}

		st.DirectoryID = usr.ID
		if usr.CreatedDateTime != "" {
			if created, err := time.Parse(time.RFC3339, usr.CreatedDateTime); err == nil {
				st.DirectoryCreatedAt = created
			}
		}
		st.LastUpdated = time.Now().UTC()

		if err := imp.state.Update(ctx, st); err != nil {
			return fmt.Errorf("update[%s]: %w", st.EmployeeNumber, err)
		}
		updated++

		if (i+1)%progressEvery == 0 {
			imp.log.Info(ctx, "enrichment progress", "processed", i+1, "updated", updated)
		}
	}

	imp.log.Info(ctx, "enrichment complete", "processed", len(states), "updated", updated)

	return nil
}
