// Package complaint provides the complaint snapshot, event and dispatch types
// shared by the routing and dispatch packages.
package complaint

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a complaint.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusAcknowledged Status = "acknowledged"
	StatusInProgress   Status = "in_progress"
	StatusResolved     Status = "resolved"
	StatusRejected     Status = "rejected"
)

// ParseStatus converts a stored or user-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusSubmitted, StatusAcknowledged, StatusInProgress, StatusResolved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown complaint status %q", s)
	}
}

// Complaint is a read-only snapshot of a citizen complaint.
//
// Owned by the persistence layer. The dispatcher never mutates it.
type Complaint struct {
	ID               string    `json:"id"`
	City             string    `json:"city"`
	Category         string    `json:"category"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	SubmitterName    string    `json:"submitter_name"`
	SubmitterAddress string    `json:"submitter_address"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Role identifies which party a notification is addressed to.
type Role string

const (
	RoleOfficial Role = "official"
	RoleCitizen  Role = "citizen"
)

// Outcome is the state of a DispatchAttempt.
//
// Transitions:
//
//	pending → sent
//	pending → failed → pending → … → sent | failed
//	pending → gateway_error
type Outcome string

const (
	OutcomePending      Outcome = "pending"
	OutcomeSent         Outcome = "sent"
	OutcomeFailed       Outcome = "failed"
	OutcomeGatewayError Outcome = "gateway_error"
)

// DispatchAttempt is the ledger row for one (complaint, role) notification.
type DispatchAttempt struct {
	ID            string    `json:"id"`
	ComplaintID   string    `json:"complaint_id"`
	Role          Role      `json:"role"`
	Address       string    `json:"address"`
	BodyHash      string    `json:"body_hash"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
	Outcome       Outcome   `json:"outcome"`
	LastError     string    `json:"last_error,omitempty"`
	ProviderID    string    `json:"provider_id,omitempty"`
}

// Terminal reports whether no further transition can leave this attempt.
func (a DispatchAttempt) Terminal() bool {
	return a.Outcome == OutcomeSent || a.Outcome == OutcomeGatewayError
}

// EventKind is the trigger for a dispatch.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
)

// Event is a complaint lifecycle event received from the intake.
//
// Complaint is optional: when nil the snapshot is loaded from storage.
type Event struct {
	ID          string     `json:"id"`
	Kind        EventKind  `json:"kind"`
	ComplaintID string     `json:"complaint_id"`
	Complaint   *Complaint `json:"complaint,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// ProcessResult represents the result of processing a single event.
//
// This is used in the worker pool to collect results from concurrent
// dispatches.
type ProcessResult struct {
	EventID     string
	ComplaintID string
	Outcomes    map[Role]Outcome
	Error       error
}
