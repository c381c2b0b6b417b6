// Package record parses one CSV export line into a structured user record,
// normalizing phone numbers and validating emails.
package record

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	//a valid line is four repetitions of a double quoted field followed by a
	//comma, which covers the five field layout the HR export produces.
	validLineRx = regexp.MustCompile(`(".*?"(?:,|)){4}`)

	fieldsRx = regexp.MustCompile(`"(?P<employeeNumber>.*?)","(?P<userName>.*?)","(?P<emailAddress>.*?)","(?P<phoneNumber>.*?)","(?P<homePhoneNumber>.*?)"`)

	countryCodeRx = regexp.MustCompile(`^\+\d+ .+`)
	parenAreaRx   = regexp.MustCompile(`\((\d{3})\)(?:\s|-)?(\d{3})-?(\d{4})`)
	validPhoneRx  = regexp.MustCompile(`^\+\d+ \d{3}-\d{3}-\d{4}$`)
	emailRx       = regexp.MustCompile(`.+@.+`)
)

// UserRecord is one parsed CSV row. Empty string means the field was absent or
// failed validation and was dropped.
type UserRecord struct {
	EmployeeNumber     string
	UserName           string
	SecondaryEmail     string
	PhoneNumber        string
	HomePhoneNumber    string
	DirectoryID        string
	DirectoryCreatedAt time.Time
}

// IsValidLine reports whether the line has the expected quoted field shape.
func IsValidLine(line string) bool {
	return validLineRx.MatchString(line)
}

// ParseLine parses a CSV line that already passed IsValidLine.
func ParseLine(line string) (UserRecord, error) {
	m := fieldsRx.FindStringSubmatch(line)
	if m == nil {
		return UserRecord{}, fmt.Errorf("line does not match the five field layout: %q", line)
	}

	rec := UserRecord{
		EmployeeNumber:  parseEmployeeNumber(m[1]),
		UserName:        strings.TrimSpace(m[2]),
		SecondaryEmail:  parseEmail(m[3]),
		PhoneNumber:     ParsePhoneNumber(m[4]),
		HomePhoneNumber: ParsePhoneNumber(m[5]),
	}

	return rec, nil
}

// HasContactInfo reports whether the record carries anything worth
// provisioning.
func (r UserRecord) HasContactInfo() bool {
	return r.SecondaryEmail != "" || r.PhoneNumber != "" || r.HomePhoneNumber != ""
}

func parseEmployeeNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	return strings.TrimLeft(s, "0")
}

func parseEmail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !emailRx.MatchString(s) {
		return ""
	}

	return s
}

// ParsePhoneNumber normalizes a raw phone number to "+<cc> AAA-PPP-LLLL" form.
// Numbers that cannot be normalized are dropped, returning "".
func ParsePhoneNumber(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	//rewrite a parenthesized area code to AAA-PPP-LLLL first
	if m := parenAreaRx.FindStringSubmatch(s); m != nil {
		s = fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
	}

	//default to the US country code when none is present
	if !countryCodeRx.MatchString(s) {
		s = "+1 " + s
	}

	if !validPhoneRx.MatchString(s) {
		return ""
	}

	return s
}
