// Package queue defines the durable update-queue contract: at-least-once
// delivery with a visibility timeout, per-message time-to-live, and a dequeue
// count for poison-message handling.
package queue

import (
	"errors"

	"github.com/google/uuid"
)

// MaxReceive is the hard cap on messages a single receive call can return.
const MaxReceive = 32

var (
	ErrMessageNotFound = errors.New("message not found or receipt expired")
)

// Message is one received queue entry. Receipt changes on every dequeue, so a
// delete with a stale receipt fails instead of acking a redelivered message.
type Message struct {
	ID           uuid.UUID
	Receipt      uuid.UUID
	Body         []byte
	DequeueCount int
}

// UpdateMessage is the queued payload asking the consumer to provision auth
// methods for one user. Either userName/employeeId or userPrincipalName must
// identify the user.
type UpdateMessage struct {
	EmployeeID        string `json:"employeeId,omitempty"`
	UserName          string `json:"userName,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty" validate:"required_without_all=EmployeeID UserName"`
	EmailAddress      string `json:"emailAddress,omitempty"`
	PhoneNumber       string `json:"phoneNumber,omitempty"`
	HomePhone         string `json:"homePhone,omitempty"`
}
