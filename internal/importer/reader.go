package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dirops/authseed/internal/directory"
	"github.com/dirops/authseed/internal/record"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadFile reads and parses the CSV export. Line 1 must be a valid-shaped
// line (the header convention guarantees it) and is discarded; a malformed
// first line is fatal. Malformed later lines are logged and skipped. Each
// parsed record is enriched with its directory identity when a resolver is
// configured; enrichment failures are warnings, not errors.
func (imp *Importer) ReadFile(ctx context.Context, csvPath string) ([]record.UserRecord, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	// Exports from spreadsheet tools often carry a UTF-8 BOM.
	sc := bufio.NewScanner(transform.NewReader(f, unicode.UTF8BOM.NewDecoder()))

	var records []record.UserRecord
	lineNo := 0

	for sc.Scan() {
		line := sc.Text()
		valid := record.IsValidLine(line)

		if lineNo == 0 {
			if !valid {
				return nil, fmt.Errorf("first line is not a valid csv line: %q", line)
			}
			lineNo++
			continue
		}
		lineNo++

		if !valid {
			imp.log.Warn(ctx, "skipping invalid csv line", "line", lineNo)
			continue
		}

		rec, err := record.ParseLine(line)
		if err != nil {
			imp.log.Warn(ctx, "skipping unparseable csv line", "line", lineNo, "err", err)
			continue
		}

		if rec.EmployeeNumber == "" {
			imp.log.Warn(ctx, "skipping record with empty employee number", "line", lineNo, "userName", rec.UserName)
			continue
		}

		if imp.dir != nil {
			if err := imp.enrich(ctx, &rec); err != nil {
				imp.log.Warn(ctx, "directory enrichment failed", "employeeNumber", rec.EmployeeNumber, "err", err)
			}
		}

		records = append(records, rec)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return records, nil
}

// enrich fills the record's directory object id and created timestamp from a
// directory lookup. Used by the delta engine to detect recreated accounts.
func (imp *Importer) enrich(ctx context.Context, rec *record.UserRecord) error {
	usr, err := imp.dir.UserByNameAndEmployeeNumber(ctx, rec.UserName, rec.EmployeeNumber)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("userByNameAndEmployeeNumber: %w", err)
	}

	rec.DirectoryID = usr.ID
	if usr.CreatedDateTime != "" {
		if created, err := time.Parse(time.RFC3339, usr.CreatedDateTime); err == nil {
			rec.DirectoryCreatedAt = created
		}
	}

	return nil
}
