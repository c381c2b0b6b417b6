package statedb

import (
	"database/sql"
	"time"

	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
)

type userState struct {
	EmployeeNumber     string         `db:"employee_number"`
	UserName           sql.NullString `db:"user_name"`
	SecondaryEmail     sql.NullString `db:"secondary_email"`
	PhoneNumber        sql.NullString `db:"phone_number"`
	HomePhoneNumber    sql.NullString `db:"home_phone_number"`
	DirectoryID        sql.NullString `db:"directory_id"`
	DirectoryCreatedAt sql.NullTime   `db:"directory_created_at"`
	LastUpdated        sql.NullTime   `db:"last_updated"`
}

func fromBusState(st stateBus.State) userState {
	return userState{
		EmployeeNumber:     st.EmployeeNumber,
		UserName:           nullString(st.UserName),
		SecondaryEmail:     nullString(st.SecondaryEmail),
		PhoneNumber:        nullString(st.PhoneNumber),
		HomePhoneNumber:    nullString(st.HomePhoneNumber),
		DirectoryID:        nullString(st.DirectoryID),
		DirectoryCreatedAt: nullTime(st.DirectoryCreatedAt),
		LastUpdated:        nullTime(st.LastUpdated),
	}
}

func toBusState(st userState) stateBus.State {
	return stateBus.State{
		EmployeeNumber:     st.EmployeeNumber,
		UserName:           st.UserName.String,
		SecondaryEmail:     st.SecondaryEmail.String,
		PhoneNumber:        st.PhoneNumber.String,
		HomePhoneNumber:    st.HomePhoneNumber.String,
		DirectoryID:        st.DirectoryID.String,
		DirectoryCreatedAt: st.DirectoryCreatedAt.Time,
		LastUpdated:        st.LastUpdated.Time,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
