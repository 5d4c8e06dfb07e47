// internal/workflow/transitions.go
package workflow

import (
	"errors"
	"fmt"
	"sort"
)

var ErrInvalidTransition = errors.New("INVALID_TRANSITION")

// transitionTable is the exhaustive map of legal moves: for each current
// status, which role may request which next statuses. Statuses absent from a
// role's row are illegal for that role; terminal statuses have no row at all.
// Admin is intentionally not in the table — see CanTransition.
var transitionTable = map[Status]map[Role][]Status{
	StatusDraft: {
		RoleApplicant: {StatusSubmitted},
	},
	StatusSubmitted: {
		RoleJuniorEngineer: {StatusUnderReviewByJE},
	},
	StatusResubmitted: {
		RoleJuniorEngineer: {StatusUnderReviewByJE},
	},
	StatusUnderReviewByJE: {
		RoleJuniorEngineer: {StatusApprovedByJE, StatusRejectedByJE, StatusReturnedForCorrection},
	},
	StatusReturnedForCorrection: {
		RoleApplicant: {StatusResubmitted},
	},
	StatusApprovedByJE: {
		RoleAssistantEngineer: {StatusUnderReviewByAE},
	},
	StatusUnderReviewByAE: {
		RoleAssistantEngineer: {StatusApprovedByAE, StatusRejectedByAE, StatusReturnedForCorrection},
	},
	StatusApprovedByAE: {
		RoleExecutiveEngineer: {StatusUnderReviewByEE},
	},
	StatusUnderReviewByEE: {
		RoleExecutiveEngineer: {StatusApprovedByEE, StatusRejectedByEE, StatusReturnedForCorrection},
	},
	StatusApprovedByEE: {
		RoleChiefEngineer: {StatusUnderReviewByCE},
	},
	StatusUnderReviewByCE: {
		RoleChiefEngineer: {StatusApprovedByCE, StatusRejectedByCE, StatusOnHold},
	},
	StatusOnHold: {
		RoleChiefEngineer: {StatusUnderReviewByCE},
	},
	StatusApprovedByCE: {
		RoleClerk: {StatusPaymentPending},
	},
	StatusPaymentPending: {
		RoleApplicant: {StatusPaymentCompleted, StatusPaymentFailed},
	},
	StatusPaymentFailed: {
		RoleApplicant: {StatusPaymentPending},
	},
	StatusPaymentCompleted: {
		RoleClerk: {StatusUnderClerkProcessing},
	},
	StatusUnderClerkProcessing: {
		RoleClerk: {StatusClerkProcessed},
	},
	StatusClerkProcessed: {
		RoleClerk: {StatusPendingSignatureByEE},
	},
	StatusPendingSignatureByEE: {
		RoleExecutiveEngineer: {StatusSignedByEE},
	},
	StatusSignedByEE: {
		RoleRegistrar: {StatusPendingSignatureByCE},
	},
	StatusPendingSignatureByCE: {
		RoleChiefEngineer: {StatusSignedByCE},
	},
	StatusSignedByCE: {
		RoleRegistrar: {StatusCertificateIssued},
	},
	StatusCertificateIssued: {
		RoleRegistrar: {StatusCompleted},
	},
}

// CanTransition reports whether acting may move an application from current
// to requested. Admin may move any known status to any known status; all
// other roles are bound to the table.
func CanTransition(current, requested Status, acting Role) bool {
	if _, ok := allStatuses[current]; !ok {
		return false
	}
	if _, ok := allStatuses[requested]; !ok {
		return false
	}
	if acting == RoleAdmin {
		return true
	}
	for _, next := range transitionTable[current][acting] {
		if next == requested {
			return true
		}
	}
	return false
}

// LegalNextStates returns the statuses acting may move current to, sorted
// for stable output. Admin gets every status except the current one.
func LegalNextStates(current Status, acting Role) []Status {
	if acting == RoleAdmin {
		out := make([]Status, 0, len(allStatuses)-1)
		for s := range allStatuses {
			if s != current {
				out = append(out, s)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return out
	}
	next := transitionTable[current][acting]
	out := make([]Status, len(next))
	copy(out, next)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TransitionError builds the typed failure for an illegal move. It always
// carries the full (current, requested, role) triple so the caller can
// surface a correctable message.
func TransitionError(current, requested Status, acting Role) error {
	return fmt.Errorf("%w: %s -> %s not allowed for role %s",
		ErrInvalidTransition, current, requested, acting)
}
