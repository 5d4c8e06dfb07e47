// internal/workflow/transitions_test.go
package workflow

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================== Review Chain Tests ==========================

func TestCanTransition_ReviewChain(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		to      Status
		role    Role
		allowed bool
	}{
		{
			name:    "applicant submits a draft",
			current: StatusDraft,
			to:      StatusSubmitted,
			role:    RoleApplicant,
			allowed: true,
		},
		{
			name:    "JE picks up a submitted application",
			current: StatusSubmitted,
			to:      StatusUnderReviewByJE,
			role:    RoleJuniorEngineer,
			allowed: true,
		},
		{
			name:    "JE approves their review",
			current: StatusUnderReviewByJE,
			to:      StatusApprovedByJE,
			role:    RoleJuniorEngineer,
			allowed: true,
		},
		{
			name:    "JE returns for correction",
			current: StatusUnderReviewByJE,
			to:      StatusReturnedForCorrection,
			role:    RoleJuniorEngineer,
			allowed: true,
		},
		{
			name:    "applicant resubmits after correction",
			current: StatusReturnedForCorrection,
			to:      StatusResubmitted,
			role:    RoleApplicant,
			allowed: true,
		},
		{
			name:    "AE starts review after JE approval",
			current: StatusApprovedByJE,
			to:      StatusUnderReviewByAE,
			role:    RoleAssistantEngineer,
			allowed: true,
		},
		{
			name:    "CE puts an application on hold",
			current: StatusUnderReviewByCE,
			to:      StatusOnHold,
			role:    RoleChiefEngineer,
			allowed: true,
		},
		{
			name:    "CE resumes from hold",
			current: StatusOnHold,
			to:      StatusUnderReviewByCE,
			role:    RoleChiefEngineer,
			allowed: true,
		},
		{
			name:    "clerk opens payment after CE approval",
			current: StatusApprovedByCE,
			to:      StatusPaymentPending,
			role:    RoleClerk,
			allowed: true,
		},
		{
			name:    "applicant retries a failed payment",
			current: StatusPaymentFailed,
			to:      StatusPaymentPending,
			role:    RoleApplicant,
			allowed: true,
		},
		{
			name:    "registrar issues the certificate",
			current: StatusSignedByCE,
			to:      StatusCertificateIssued,
			role:    RoleRegistrar,
			allowed: true,
		},
		{
			name:    "applicant cannot approve their own application",
			current: StatusUnderReviewByJE,
			to:      StatusApprovedByJE,
			role:    RoleApplicant,
			allowed: false,
		},
		{
			name:    "JE cannot skip straight to AE approval",
			current: StatusUnderReviewByJE,
			to:      StatusApprovedByAE,
			role:    RoleJuniorEngineer,
			allowed: false,
		},
		{
			name:    "AE cannot act on a JE-stage application",
			current: StatusUnderReviewByJE,
			to:      StatusApprovedByJE,
			role:    RoleAssistantEngineer,
			allowed: false,
		},
		{
			name:    "nothing moves out of completed",
			current: StatusCompleted,
			to:      StatusSubmitted,
			role:    RoleRegistrar,
			allowed: false,
		},
		{
			name:    "rejected applications stay rejected",
			current: StatusRejectedByAE,
			to:      StatusResubmitted,
			role:    RoleApplicant,
			allowed: false,
		},
		{
			name:    "unknown current status is never allowed",
			current: Status("frozen"),
			to:      StatusSubmitted,
			role:    RoleAdmin,
			allowed: false,
		},
		{
			name:    "unknown target status is never allowed",
			current: StatusSubmitted,
			to:      Status("archived"),
			role:    RoleAdmin,
			allowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.current, tt.to, tt.role))
		})
	}
}

func TestCanTransition_AdminEscapeHatch(t *testing.T) {
	// Admin may force any known status to any other known status, including
	// out of terminal states.
	assert.True(t, CanTransition(StatusRejectedByCE, StatusUnderReviewByCE, RoleAdmin))
	assert.True(t, CanTransition(StatusCompleted, StatusDraft, RoleAdmin))
	assert.True(t, CanTransition(StatusDraft, StatusCertificateIssued, RoleAdmin))
}

// ========================== Terminal Status Tests ==========================

func TestTerminalStatuses_NoNonAdminExits(t *testing.T) {
	terminals := []Status{
		StatusCompleted,
		StatusRejectedByJE,
		StatusRejectedByAE,
		StatusRejectedByEE,
		StatusRejectedByCE,
	}

	for _, terminal := range terminals {
		require.True(t, terminal.Terminal(), "expected %s to be terminal", terminal)
		for role := range allRoles {
			if role == RoleAdmin {
				continue
			}
			for to := range allStatuses {
				assert.False(t, CanTransition(terminal, to, role),
					"terminal status %s must not allow %s for role %s", terminal, to, role)
			}
		}
	}
}

func TestTerminalStatuses_HaveNoOwner(t *testing.T) {
	for status := range allStatuses {
		_, ok := OwnerRole(status)
		if status.Terminal() {
			assert.False(t, ok, "terminal status %s must have no owner", status)
		} else {
			assert.True(t, ok, "non-terminal status %s must have an owner", status)
		}
	}
}

// ========================== Table Shape Tests ==========================

func TestTransitionTable_OnlyKnownStatusesAndRoles(t *testing.T) {
	for current, byRole := range transitionTable {
		_, ok := allStatuses[current]
		require.True(t, ok, "table keys must be known statuses, got %q", current)
		for role, targets := range byRole {
			_, ok := allRoles[role]
			require.True(t, ok, "table roles must be known, got %q", role)
			require.NotEqual(t, RoleAdmin, role, "admin must not appear in the table")
			for _, to := range targets {
				_, ok := allStatuses[to]
				require.True(t, ok, "target of %s must be known, got %q", current, to)
			}
		}
	}
}

func TestTransitionTable_EveryNonTerminalStatusHasAnExit(t *testing.T) {
	for status := range allStatuses {
		if status.Terminal() {
			continue
		}
		byRole, ok := transitionTable[status]
		require.True(t, ok, "non-terminal status %s has no transitions", status)
		total := 0
		for _, targets := range byRole {
			total += len(targets)
		}
		assert.Greater(t, total, 0, "non-terminal status %s has an empty row", status)
	}
}

func TestLegalNextStates(t *testing.T) {
	t.Run("table-bound role gets a sorted copy", func(t *testing.T) {
		next := LegalNextStates(StatusUnderReviewByJE, RoleJuniorEngineer)
		assert.Equal(t, []Status{
			StatusApprovedByJE,
			StatusRejectedByJE,
			StatusReturnedForCorrection,
		}, next)
		assert.True(t, sort.SliceIsSorted(next, func(i, j int) bool { return next[i] < next[j] }))
	})

	t.Run("role without a row gets nothing", func(t *testing.T) {
		assert.Empty(t, LegalNextStates(StatusUnderReviewByJE, RoleClerk))
	})

	t.Run("admin gets everything except the current status", func(t *testing.T) {
		next := LegalNextStates(StatusOnHold, RoleAdmin)
		assert.Len(t, next, len(allStatuses)-1)
		assert.NotContains(t, next, StatusOnHold)
		assert.True(t, sort.SliceIsSorted(next, func(i, j int) bool { return next[i] < next[j] }))
	})
}

// ========================== Error and Parsing Tests ==========================

func TestTransitionError(t *testing.T) {
	err := TransitionError(StatusSubmitted, StatusApprovedByCE, RoleJuniorEngineer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "submitted")
	assert.Contains(t, err.Error(), "approved_by_ce")
	assert.Contains(t, err.Error(), "junior_engineer")
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("under_review_by_ae")
	require.NoError(t, err)
	assert.Equal(t, StatusUnderReviewByAE, st)

	_, err = ParseStatus("under_review_by_zz")
	assert.Error(t, err)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("chief_engineer")
	require.NoError(t, err)
	assert.Equal(t, RoleChiefEngineer, r)

	_, err = ParseRole("intern")
	assert.Error(t, err)
}

func TestOfficerTier(t *testing.T) {
	assert.True(t, OfficerTier(RoleJuniorEngineer))
	assert.True(t, OfficerTier(RoleRegistrar))
	assert.False(t, OfficerTier(RoleApplicant))
	assert.False(t, OfficerTier(RoleAdmin))
}

func TestSupervisory(t *testing.T) {
	assert.True(t, Supervisory(RoleExecutiveEngineer))
	assert.True(t, Supervisory(RoleChiefEngineer))
	assert.True(t, Supervisory(RoleAdmin))
	assert.False(t, Supervisory(RoleJuniorEngineer))
	assert.False(t, Supervisory(RoleClerk))
	assert.False(t, Supervisory(RoleApplicant))
}

func TestTerminalStatusList(t *testing.T) {
	list := TerminalStatusList()
	assert.Equal(t, []string{
		"completed",
		"rejected_by_ae",
		"rejected_by_ce",
		"rejected_by_ee",
		"rejected_by_je",
	}, list)
}
