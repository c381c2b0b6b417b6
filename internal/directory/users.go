package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// UserByID fetches one user by object id or principal name.
func (c *Client) UserByID(ctx context.Context, userID string) (User, error) {
	endpoint := fmt.Sprintf("users/%s?$select=id,userPrincipalName,displayName,createdDateTime", url.PathEscape(userID))

	status, data, err := c.sendAPICall(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return User{}, fmt.Errorf("sendAPICall: %w", err)
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return User{}, ErrUserNotFound
	default:
		return User{}, apiError(status, data)
	}

	var usr User
	if err := unmarshalBody(data, &usr); err != nil {
		return User{}, err
	}
	if usr.ID == "" {
		return User{}, errors.New("user id missing in response")
	}

	return usr, nil
}

// UserByPrincipalName fetches one user by an exact principal name match.
func (c *Client) UserByPrincipalName(ctx context.Context, upn string) (User, error) {
	return c.UserByID(ctx, upn)
}

// UserByNameAndEmployeeNumber resolves a user by account name or employee
// number. The filter matches either field, so the result is guarded with an
// exact comparison before it is trusted: a startswith match on a different
// person's principal name must not win.
func (c *Client) UserByNameAndEmployeeNumber(ctx context.Context, userName string, employeeNumber string) (User, error) {
	if userName == "" && employeeNumber == "" {
		return User{}, errors.New("userName and employeeNumber are both empty")
	}

	var filter string
	if userName != "" {
		filter = fmt.Sprintf("startswith(userPrincipalName,'%s@')", userName)
	}
	if employeeNumber != "" {
		if filter != "" {
			filter += " or "
		}
		filter += fmt.Sprintf("employeeId eq '%s'", employeeNumber)
	}

	endpoint := fmt.Sprintf("users?$filter=%s&$select=id,userPrincipalName,displayName,onPremisesSamAccountName,employeeId,createdDateTime&$count=true",
		url.QueryEscape(filter))

	// Advanced query against directory properties. The service only honors
	// filters on onPremisesSamAccountName with eventual consistency enabled.
	headers := map[string]string{"ConsistencyLevel": "eventual"}

	status, data, err := c.sendAPICall(ctx, http.MethodGet, endpoint, nil, headers)
	if err != nil {
		return User{}, fmt.Errorf("sendAPICall: %w", err)
	}
	if status != http.StatusOK {
		return User{}, apiError(status, data)
	}

	var users collection[User]
	if err := unmarshalBody(data, &users); err != nil {
		return User{}, err
	}

	for _, usr := range users.Value {
		if (userName != "" && usr.OnPremisesSamAccountName == userName) ||
			(employeeNumber != "" && usr.EmployeeID == employeeNumber) {
			return usr, nil
		}
	}

	return User{}, ErrUserNotFound
}
