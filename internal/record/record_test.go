package record_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/dirops/authseed/internal/record"
)

func Test_ParseLine(t *testing.T) {
	t.Parallel()

	line := `"00123","jdoe","jdoe2@example.com","(555) 555-1234",""`

	if !record.IsValidLine(line) {
		t.Fatalf("expected line to be valid: %q", line)
	}

	got, err := record.ParseLine(line)
	if err != nil {
		t.Fatalf("parseLine: %s", err)
	}

	want := record.UserRecord{
		EmployeeNumber:  "123",
		UserName:        "jdoe",
		SecondaryEmail:  "jdoe2@example.com",
		PhoneNumber:     "+1 555-555-1234",
		HomePhoneNumber: "",
	}

	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("mismatch (-got +want):\n%s", diff)
	}
}

func Test_ParseLine_DropsInvalidFields(t *testing.T) {
	t.Parallel()

	line := `"000","guser","not-an-email","12345",""`

	got, err := record.ParseLine(line)
	if err != nil {
		t.Fatalf("parseLine: %s", err)
	}

	if got.EmployeeNumber != "" {
		t.Errorf("employee number of all zeros should strip to empty, got %q", got.EmployeeNumber)
	}
	if got.SecondaryEmail != "" {
		t.Errorf("invalid email should be dropped, got %q", got.SecondaryEmail)
	}
	if got.PhoneNumber != "" {
		t.Errorf("unnormalizable phone should be dropped, got %q", got.PhoneNumber)
	}
	if got.HasContactInfo() {
		t.Error("record with all contact fields dropped should report no contact info")
	}
}

func Test_IsValidLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want bool
	}{
		{"header line", `"EmployeeNumber","UserName","Email","Phone","HomePhone"`, true},
		{"data line", `"1","a","a@b.c","555-555-1234",""`, true},
		{"unquoted", `1,a,a@b.c,555,`, false},
		{"too few fields", `"1","a"`, false},
		{"empty", ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := record.IsValidLine(tt.line); got != tt.want {
				t.Errorf("IsValidLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func Test_ParsePhoneNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"paren area code", "(555) 555-1234", "+1 555-555-1234"},
		{"paren dash", "(555)-555-1234", "+1 555-555-1234"},
		{"plain", "555-555-1234", "+1 555-555-1234"},
		{"already has country code", "+44 555-555-1234", "+44 555-555-1234"},
		{"blank", "", ""},
		{"garbage", "call me", ""},
		{"digits only", "5555551234", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := record.ParsePhoneNumber(tt.in); got != tt.want {
				t.Errorf("ParsePhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Any accepted phone number must re-normalize to itself.
func Test_ParsePhoneNumber_FixedPoint(t *testing.T) {
	t.Parallel()

	inputs := []string{"(555) 555-1234", "555-555-1234", "+1 555-555-1234", "+49 123-456-7890"}

	for _, in := range inputs {
		normalized := record.ParsePhoneNumber(in)
		if normalized == "" {
			t.Fatalf("expected %q to normalize", in)
		}

		if again := record.ParsePhoneNumber(normalized); again != normalized {
			t.Errorf("normalization is not a fixed point: %q -> %q -> %q", in, normalized, again)
		}
	}
}
