package handlers

import "github.com/dirops/authseed/internal/queue"

type appUpdateRequest struct {
	EmployeeID        string `json:"employeeId"`
	UserName          string `json:"userName"`
	UserPrincipalName string `json:"userPrincipalName" binding:"required_without_all=EmployeeID UserName"`
	EmailAddress      string `json:"emailAddress"`
	PhoneNumber       string `json:"phoneNumber"`
	HomePhone         string `json:"homePhone"`
}

func toUpdateMessage(req appUpdateRequest) queue.UpdateMessage {
	return queue.UpdateMessage{
		EmployeeID:        req.EmployeeID,
		UserName:          req.UserName,
		UserPrincipalName: req.UserPrincipalName,
		EmailAddress:      req.EmailAddress,
		PhoneNumber:       req.PhoneNumber,
		HomePhone:         req.HomePhone,
	}
}

// Info holds liveness details for the orchestrator.
type Info struct {
	Status     string `json:"status,omitempty"`
	Build      string `json:"build,omitempty"`
	Host       string `json:"host,omitempty"`
	Name       string `json:"name,omitempty"`
	PodIP      string `json:"podIP,omitempty"`
	Node       string `json:"node,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	GOMAXPROCS int    `json:"GOMAXPROCS,omitempty"`
}
