package directory

// User is the subset of directory user fields the service reads.
type User struct {
	ID                       string `json:"id"`
	UserPrincipalName        string `json:"userPrincipalName"`
	DisplayName              string `json:"displayName"`
	OnPremisesSamAccountName string `json:"onPremisesSamAccountName,omitempty"`
	EmployeeID               string `json:"employeeId,omitempty"`
	CreatedDateTime          string `json:"createdDateTime,omitempty"`
}

// EmailMethod is an email authentication method registered on a user.
type EmailMethod struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"emailAddress"`
}

// PhoneMethod is a phone authentication method registered on a user.
type PhoneMethod struct {
	ID          string `json:"id,omitempty"`
	PhoneNumber string `json:"phoneNumber"`
	PhoneType   string `json:"phoneType"`
}

type collection[T any] struct {
	Value []T `json:"value"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}
