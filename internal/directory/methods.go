package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AddOutcome reports what a write call actually did. A dry-run skip is a
// normal outcome, not an error.
type AddOutcome int

const (
	OutcomeAdded AddOutcome = iota
	OutcomeDryRunSkipped
)

func (o AddOutcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeDryRunSkipped:
		return "dry-run skipped"
	default:
		return "unknown"
	}
}

// EmailMethods lists the email authentication methods registered on a user.
func (c *Client) EmailMethods(ctx context.Context, userID string) ([]EmailMethod, error) {
	endpoint := fmt.Sprintf("users/%s/authentication/emailMethods", url.PathEscape(userID))

	status, data, err := c.sendAPICall(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("sendAPICall: %w", err)
	}
	if status != http.StatusOK {
		return nil, apiError(status, data)
	}

	var methods collection[EmailMethod]
	if err := unmarshalBody(data, &methods); err != nil {
		return nil, err
	}

	return methods.Value, nil
}

// PhoneMethods lists the phone authentication methods registered on a user.
func (c *Client) PhoneMethods(ctx context.Context, userID string) ([]PhoneMethod, error) {
	endpoint := fmt.Sprintf("users/%s/authentication/phoneMethods", url.PathEscape(userID))

	status, data, err := c.sendAPICall(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("sendAPICall: %w", err)
	}
	if status != http.StatusOK {
		return nil, apiError(status, data)
	}

	var methods collection[PhoneMethod]
	if err := unmarshalBody(data, &methods); err != nil {
		return nil, err
	}

	return methods.Value, nil
}

// AddEmailMethod registers an email authentication method on a user. In
// dry-run mode nothing is sent and the outcome says so.
func (c *Client) AddEmailMethod(ctx context.Context, userID string, emailAddress string) (AddOutcome, error) {
	if c.dryRun {
		return OutcomeDryRunSkipped, nil
	}

	endpoint := fmt.Sprintf("users/%s/authentication/emailMethods", url.PathEscape(userID))

	body, err := json.Marshal(EmailMethod{EmailAddress: emailAddress})
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	status, data, err := c.sendAPICall(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return 0, fmt.Errorf("sendAPICall: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, apiError(status, data)
	}

	return OutcomeAdded, nil
}

// AddPhoneMethod registers a mobile phone authentication method on a user.
// In dry-run mode nothing is sent and the outcome says so.
func (c *Client) AddPhoneMethod(ctx context.Context, userID string, phoneNumber string) (AddOutcome, error) {
	if c.dryRun {
		return OutcomeDryRunSkipped, nil
	}

	endpoint := fmt.Sprintf("users/%s/authentication/phoneMethods", url.PathEscape(userID))

	body, err := json.Marshal(PhoneMethod{PhoneNumber: phoneNumber, PhoneType: "mobile"})
	if err != nil {
		return 0, fmt.Errorf("marshal: %w", err)
	}

	status, data, err := c.sendAPICall(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return 0, fmt.Errorf("sendAPICall: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return 0, apiError(status, data)
	}

	return OutcomeAdded, nil
}
