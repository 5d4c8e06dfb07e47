// internal/assignment/escalation_test.go
package assignment

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-workflow/internal/common/logger"
	"license-workflow/internal/models"
	"license-workflow/internal/notify"
)

// ========================== Test Helpers ==========================

type escalatorFixture struct {
	*engineFixture
	escalator *Escalator
}

func newEscalatorFixture(t *testing.T) *escalatorFixture {
	t.Helper()
	ef := newEngineFixture(t)
	esc := NewEscalator(ef.engine, DefaultLadder(), ef.store, logger.NewTestLogger(t))
	esc.now = ef.engine.now
	return &escalatorFixture{engineFixture: ef, escalator: esc}
}

// sweepNow mirrors the fixed clock in newEngineFixture.
var sweepNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// expectLockAt is expectLock with an explicit updated_at, because the stall
// clock also watches the last status advance.
func (f *escalatorFixture) expectLockAt(id, status string, officerID *string, updatedAt time.Time) {
	var owner interface{}
	if officerID != nil {
		owner = *officerID
	}
	f.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "applicant_id", "license_type", "status", "current_officer_id", "submitted_at", "updated_at",
		}).AddRow(id, "applicant-1", "structural_design", status, owner, nil, updatedAt))
}

func (f *escalatorFixture) expectActiveRecord(officerID, role string, assignedAt time.Time) {
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE application_id = $1 AND active")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "application_id", "previous_officer_id", "officer_id", "action", "role",
			"workload_at_assignment", "reason", "assigned_at", "accepted_at", "active",
		}).AddRow("rec-1", "app-1", nil, officerID, "assign", role, 1, "entered submitted", assignedAt, nil, true))
}

func (f *escalatorFixture) expectNoActiveRecord() {
	f.mock.ExpectQuery(regexp.QuoteMeta("WHERE application_id = $1 AND active")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "application_id", "previous_officer_id", "officer_id", "action", "role",
			"workload_at_assignment", "reason", "assigned_at", "accepted_at", "active",
		}))
}

// expectEscalationCount matches the lateral-only count: the join on the
// predecessor's role keeps climb arrivals out of the peer budget.
func (f *escalatorFixture) expectEscalationCount(n int) {
	f.mock.ExpectQuery(regexp.QuoteMeta(`o.role = $3`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

// ========================== Stall Detection Tests ==========================

func TestFindStalled(t *testing.T) {
	f := newEscalatorFixture(t)

	stalledSince := sweepNow.AddDate(0, 0, -10)
	f.mock.ExpectQuery(regexp.QuoteMeta("a.updated_at < $1")).
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "officer_id", "stalled_since"}).
			AddRow("app-1", "je-1", stalledSince))
	f.mock.ExpectQuery(regexp.QuoteMeta("current_officer_id IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("app-2", "submitted"))

	cases, err := f.escalator.FindStalled(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 2)

	require.NotNil(t, cases[0].OfficerID)
	assert.Equal(t, "je-1", *cases[0].OfficerID)
	assert.Equal(t, stalledSince, cases[0].StalledSince)

	// Ownerless applications are eligible immediately.
	assert.Equal(t, "app-2", cases[1].ApplicationID)
	assert.Nil(t, cases[1].OfficerID)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// ========================== Escalation Decision Tests ==========================

func TestEscalate_FreshAssignmentIsSkipped(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-1"
	f.mock.ExpectBegin()
	f.expectLock("app-1", "under_review_by_je", &je)
	f.expectActiveRecord("je-1", "junior_engineer", sweepNow.AddDate(0, 0, -2))
	f.mock.ExpectRollback()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	assert.Nil(t, rec, "a record younger than the stall threshold needs nothing")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_RecentStatusAdvanceResetsTheClock(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-1"
	f.mock.ExpectBegin()
	// The assignment is old, but the officer advanced the status yesterday.
	// Same-tier stage moves keep the record, so only updated_at shows the
	// case is still moving.
	f.expectLockAt("app-1", "under_review_by_je", &je, sweepNow.AddDate(0, 0, -1))
	f.expectActiveRecord("je-1", "junior_engineer", sweepNow.AddDate(0, 0, -10))
	f.mock.ExpectRollback()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	assert.Nil(t, rec, "an application with recent progress is not stalled")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_TerminalApplicationIsSkipped(t *testing.T) {
	f := newEscalatorFixture(t)

	f.mock.ExpectBegin()
	f.expectLock("app-1", "completed", nil)
	f.mock.ExpectRollback()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestEscalate_OwnerlessRetriesAssignment(t *testing.T) {
	f := newEscalatorFixture(t)

	f.mock.ExpectBegin()
	f.expectLock("app-1", "submitted", nil)
	f.expectNoActiveRecord()
	f.expectCandidates(candidateRows().AddRow("je-1", 0, nil))
	f.expectRecordWrite()
	f.mock.ExpectCommit()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "je-1", rec.OfficerID)
	assert.Equal(t, models.ActionAssign, rec.Action)
	assert.Equal(t, "retry after no officer available", rec.Reason)

	require.Len(t, f.notifier.inputs, 1)
	assert.Equal(t, notify.TypeCaseAssigned, f.notifier.inputs[0].NotificationType)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_PeerGetsTheCaseFirst(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-1"
	f.mock.ExpectBegin()
	f.expectLockAt("app-1", "under_review_by_je", &je, sweepNow.AddDate(0, 0, -10))
	f.expectActiveRecord("je-1", "junior_engineer", sweepNow.AddDate(0, 0, -10))
	f.expectEscalationCount(0)
	f.expectCandidates(candidateRows().
		AddRow("je-1", 0, sweepNow.AddDate(0, 0, -10)).
		AddRow("je-2", 5, sweepNow.AddDate(0, 0, -1)))
	f.expectRecordWrite()
	f.mock.ExpectCommit()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "je-2", rec.OfficerID, "the stalled owner is excluded even with the lowest workload")
	assert.Equal(t, "junior_engineer", rec.Role)
	assert.Equal(t, models.ActionEscalate, rec.Action)
	assert.Equal(t, "stalled for 10 days with officer je-1", rec.Reason)

	require.Len(t, f.notifier.inputs, 1)
	assert.Equal(t, notify.TypeCaseEscalated, f.notifier.inputs[0].NotificationType)
	assert.Equal(t, 10, f.notifier.inputs[0].Metadata["stalledDays"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_ClimbsAfterPeerBudgetSpent(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-3"
	f.mock.ExpectBegin()
	f.expectLockAt("app-1", "under_review_by_je", &je, sweepNow.AddDate(0, 0, -8))
	f.expectActiveRecord("je-3", "junior_engineer", sweepNow.AddDate(0, 0, -8))
	f.expectEscalationCount(2)
	f.expectCandidates(candidateRows().AddRow("ae-1", 3, nil))
	f.expectRecordWrite()
	f.mock.ExpectCommit()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ae-1", rec.OfficerID)
	assert.Equal(t, "assistant_engineer", rec.Role)
	assert.Equal(t, models.ActionEscalate, rec.Action)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_SkipsUnstaffedTier(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-1"
	f.mock.ExpectBegin()
	f.expectLockAt("app-1", "under_review_by_je", &je, sweepNow.AddDate(0, 0, -9))
	f.expectActiveRecord("je-1", "junior_engineer", sweepNow.AddDate(0, 0, -9))
	f.expectEscalationCount(2)
	// No AE on duty; the EE tier takes it.
	f.expectCandidates(candidateRows())
	f.expectCandidates(candidateRows().AddRow("ee-1", 1, nil))
	f.expectRecordWrite()
	f.mock.ExpectCommit()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ee-1", rec.OfficerID)
	assert.Equal(t, "executive_engineer", rec.Role)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_TopOfLadderHasNoPath(t *testing.T) {
	f := newEscalatorFixture(t)

	ce := "ce-1"
	f.mock.ExpectBegin()
	f.expectLockAt("app-1", "under_review_by_ce", &ce, sweepNow.AddDate(0, 0, -20))
	f.expectActiveRecord("ce-1", "chief_engineer", sweepNow.AddDate(0, 0, -20))
	f.expectEscalationCount(2)
	f.mock.ExpectRollback()

	_, err := f.escalator.Escalate(context.Background(), "app-1", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoEscalationPath))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEscalate_ExplicitReasonIsKept(t *testing.T) {
	f := newEscalatorFixture(t)

	je := "je-1"
	f.mock.ExpectBegin()
	f.expectLockAt("app-1", "under_review_by_je", &je, sweepNow.AddDate(0, 0, -10))
	f.expectActiveRecord("je-1", "junior_engineer", sweepNow.AddDate(0, 0, -10))
	f.expectEscalationCount(0)
	f.expectCandidates(candidateRows().AddRow("je-2", 0, nil))
	f.expectRecordWrite()
	f.mock.ExpectCommit()

	rec, err := f.escalator.Escalate(context.Background(), "app-1", "manual escalation by supervisor")
	require.NoError(t, err)
	assert.Equal(t, "manual escalation by supervisor", rec.Reason)
}
