package bus

import (
	"time"

	"github.com/dirops/authseed/internal/record"
)

// State is the last seen value of one user's contact fields. One row exists
// per employee number once that user's first update has been dispatched.
type State struct {
	EmployeeNumber     string
	UserName           string
	SecondaryEmail     string
	PhoneNumber        string
	HomePhoneNumber    string
	DirectoryID        string
	DirectoryCreatedAt time.Time
	LastUpdated        time.Time
}

// FromRecord builds the state row that persisting the record would produce.
func FromRecord(rec record.UserRecord, now time.Time) State {
	return State{
		EmployeeNumber:     rec.EmployeeNumber,
		UserName:           rec.UserName,
		SecondaryEmail:     rec.SecondaryEmail,
		PhoneNumber:        rec.PhoneNumber,
		HomePhoneNumber:    rec.HomePhoneNumber,
		DirectoryID:        rec.DirectoryID,
		DirectoryCreatedAt: rec.DirectoryCreatedAt,
		LastUpdated:        now,
	}
}
