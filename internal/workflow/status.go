// internal/workflow/status.go
package workflow

import "fmt"

// Status is a stage of the license application lifecycle. The domain is
// closed: values outside the enumerated set are rejected at Parse time, never
// deep inside the engines.
type Status string

const (
	StatusDraft                 Status = "draft"
	StatusSubmitted             Status = "submitted"
	StatusUnderReviewByJE       Status = "under_review_by_je"
	StatusApprovedByJE          Status = "approved_by_je"
	StatusRejectedByJE          Status = "rejected_by_je"
	StatusReturnedForCorrection Status = "returned_for_correction"
	StatusResubmitted           Status = "resubmitted"
	StatusUnderReviewByAE       Status = "under_review_by_ae"
	StatusApprovedByAE          Status = "approved_by_ae"
	StatusRejectedByAE          Status = "rejected_by_ae"
	StatusUnderReviewByEE       Status = "under_review_by_ee"
	StatusApprovedByEE          Status = "approved_by_ee"
	StatusRejectedByEE          Status = "rejected_by_ee"
	StatusUnderReviewByCE       Status = "under_review_by_ce"
	StatusApprovedByCE          Status = "approved_by_ce"
	StatusRejectedByCE          Status = "rejected_by_ce"
	StatusOnHold                Status = "on_hold"
	StatusPaymentPending        Status = "payment_pending"
	StatusPaymentFailed         Status = "payment_failed"
	StatusPaymentCompleted      Status = "payment_completed"
	StatusUnderClerkProcessing  Status = "under_clerk_processing"
	StatusClerkProcessed        Status = "clerk_processed"
	StatusPendingSignatureByEE  Status = "pending_signature_by_ee"
	StatusSignedByEE            Status = "signed_by_ee"
	StatusPendingSignatureByCE  Status = "pending_signature_by_ce"
	StatusSignedByCE            Status = "signed_by_ce"
	StatusCertificateIssued     Status = "certificate_issued"
	StatusCompleted             Status = "completed"
)

// Role is a participant tier. The ladder roles are ordered; applicant and
// admin sit outside the ladder (applicant below it, admin above all checks).
type Role string

const (
	RoleApplicant         Role = "applicant"
	RoleJuniorEngineer    Role = "junior_engineer"
	RoleAssistantEngineer Role = "assistant_engineer"
	RoleExecutiveEngineer Role = "executive_engineer"
	RoleChiefEngineer     Role = "chief_engineer"
	RoleClerk             Role = "clerk"
	RoleRegistrar         Role = "registrar"
	RoleAdmin             Role = "admin"
)

var allStatuses = map[Status]struct{}{
	StatusDraft: {}, StatusSubmitted: {},
	StatusUnderReviewByJE: {}, StatusApprovedByJE: {}, StatusRejectedByJE: {},
	StatusReturnedForCorrection: {}, StatusResubmitted: {},
	StatusUnderReviewByAE: {}, StatusApprovedByAE: {}, StatusRejectedByAE: {},
	StatusUnderReviewByEE: {}, StatusApprovedByEE: {}, StatusRejectedByEE: {},
	StatusUnderReviewByCE: {}, StatusApprovedByCE: {}, StatusRejectedByCE: {},
	StatusOnHold: {}, StatusPaymentPending: {}, StatusPaymentFailed: {},
	StatusPaymentCompleted: {}, StatusUnderClerkProcessing: {}, StatusClerkProcessed: {},
	StatusPendingSignatureByEE: {}, StatusSignedByEE: {},
	StatusPendingSignatureByCE: {}, StatusSignedByCE: {},
	StatusCertificateIssued: {}, StatusCompleted: {},
}

var allRoles = map[Role]struct{}{
	RoleApplicant: {}, RoleJuniorEngineer: {}, RoleAssistantEngineer: {},
	RoleExecutiveEngineer: {}, RoleChiefEngineer: {}, RoleClerk: {},
	RoleRegistrar: {}, RoleAdmin: {},
}

// ParseStatus converts a stored status string into the closed domain.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := allStatuses[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// ParseRole converts a stored role string into the closed domain.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := allRoles[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// terminal states have no outgoing transitions for any non-admin role.
var terminalStatuses = map[Status]struct{}{
	StatusCompleted:    {},
	StatusRejectedByJE: {},
	StatusRejectedByAE: {},
	StatusRejectedByEE: {},
	StatusRejectedByCE: {},
}

// Terminal reports whether s admits no further non-admin transitions.
func (s Status) Terminal() bool {
	_, ok := terminalStatuses[s]
	return ok
}

// statusOwner maps each non-terminal status to the tier responsible for
// moving it forward. Terminal statuses have no owner.
var statusOwner = map[Status]Role{
	StatusDraft:                 RoleApplicant,
	StatusReturnedForCorrection: RoleApplicant,
	StatusPaymentPending:        RoleApplicant,
	StatusPaymentFailed:         RoleApplicant,

	StatusSubmitted:       RoleJuniorEngineer,
	StatusResubmitted:     RoleJuniorEngineer,
	StatusUnderReviewByJE: RoleJuniorEngineer,

	StatusApprovedByJE:    RoleAssistantEngineer,
	StatusUnderReviewByAE: RoleAssistantEngineer,

	StatusApprovedByAE:         RoleExecutiveEngineer,
	StatusUnderReviewByEE:      RoleExecutiveEngineer,
	StatusPendingSignatureByEE: RoleExecutiveEngineer,

	StatusApprovedByEE:         RoleChiefEngineer,
	StatusUnderReviewByCE:      RoleChiefEngineer,
	StatusOnHold:               RoleChiefEngineer,
	StatusPendingSignatureByCE: RoleChiefEngineer,

	StatusApprovedByCE:         RoleClerk,
	StatusPaymentCompleted:     RoleClerk,
	StatusUnderClerkProcessing: RoleClerk,
	StatusClerkProcessed:       RoleClerk,

	StatusSignedByEE:        RoleRegistrar,
	StatusSignedByCE:        RoleRegistrar,
	StatusCertificateIssued: RoleRegistrar,
}

// OwnerRole returns the tier responsible for a status. ok is false for
// terminal statuses, which nobody owns.
func OwnerRole(s Status) (Role, bool) {
	r, ok := statusOwner[s]
	return r, ok
}

// OfficerTier reports whether r is a ladder tier staffed by officers, as
// opposed to the applicant or the admin escape hatch.
func OfficerTier(r Role) bool {
	switch r {
	case RoleJuniorEngineer, RoleAssistantEngineer, RoleExecutiveEngineer,
		RoleChiefEngineer, RoleClerk, RoleRegistrar:
		return true
	}
	return false
}

// Supervisory reports whether r may move cases between officers. Line
// tiers work their own queues; only senior engineers and the admin can
// hand a case to someone else.
func Supervisory(r Role) bool {
	switch r {
	case RoleExecutiveEngineer, RoleChiefEngineer, RoleAdmin:
		return true
	}
	return false
}
