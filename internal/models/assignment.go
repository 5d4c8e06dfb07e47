// internal/models/assignment.go
package models

import "time"

// Assignment actions. The ledger is append-only: a record is never changed
// after insert except to flip Active off when a newer record supersedes it.
const (
	ActionAssign   = "assign"
	ActionReassign = "reassign"
	ActionEscalate = "escalate"
)

// AssignmentRecord is one ownership event for an application.
// PreviousOfficerID is nil on the first assignment. WorkloadAtAssignment is
// the target officer's open-case count at decision time, kept for auditing.
type AssignmentRecord struct {
	ID                   string     `json:"id"`
	ApplicationID        string     `json:"applicationId"`
	PreviousOfficerID    *string    `json:"previousOfficerId,omitempty"`
	OfficerID            string     `json:"officerId"`
	Action               string     `json:"action"`
	Role                 string     `json:"role"`
	WorkloadAtAssignment int        `json:"workloadAtAssignment"`
	Reason               string     `json:"reason,omitempty"`
	AssignedAt           time.Time  `json:"assignedAt"`
	AcceptedAt           *time.Time `json:"acceptedAt,omitempty"`
	Active               bool       `json:"active"`
}

// StatusEvent is one entry of the status history journal.
type StatusEvent struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	FromStatus    string    `json:"fromStatus"`
	ToStatus      string    `json:"toStatus"`
	OfficerID     string    `json:"officerId"`
	Remarks       string    `json:"remarks,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
