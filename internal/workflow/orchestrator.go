// internal/workflow/orchestrator.go
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"license-workflow/internal/audit"
	commonerrors "license-workflow/internal/common/errors"
	"license-workflow/internal/common/logger"
	"license-workflow/internal/common/metrics"
	"license-workflow/internal/models"
	"license-workflow/internal/notify"
)

// RoleResolver checks an acting officer against the directory. Applicants
// are not in the directory, so the orchestrator only consults it for staff
// actors.
type RoleResolver interface {
	ActorRole(ctx context.Context, officerID string) (Role, bool, error)
}

type TransitionInput struct {
	ApplicationID string
	To            Status
	ActorID       string
	ActorRole     Role
	Remarks       string
}

type TransitionOutput struct {
	Application *models.Application
	Assignment  *models.AssignmentRecord
	Event       *models.StatusEvent
}

// Orchestrator applies status transitions. A transition, its journal entry
// and any resulting assignment commit in one serializable transaction;
// notifications, metrics and the audit mirror run after commit.
type Orchestrator struct {
	store    *Store
	resolver RoleResolver
	assigner Assigner
	notifier notify.Notifier
	audit    audit.Recorder
	logger   logger.Logger
	now      func() time.Time

	// adminAutoAssign controls whether an admin-driven transition triggers
	// auto-assignment like any other, or deliberately leaves the
	// application ownerless for the stall sweep to pick up.
	adminAutoAssign bool
}

func NewOrchestrator(store *Store, resolver RoleResolver, assigner Assigner, notifier notify.Notifier, rec audit.Recorder, log logger.Logger, adminAutoAssign bool) *Orchestrator {
	return &Orchestrator{
		store:           store,
		resolver:        resolver,
		assigner:        assigner,
		notifier:        notifier,
		audit:           rec,
		logger:          log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:             time.Now,
		adminAutoAssign: adminAutoAssign,
	}
}

// TransitionWithRetry runs Transition, retrying when the serializable
// transaction loses a conflict with a concurrent decision. The losing side
// re-reads everything, so a retry sees the winner's state.
func (o *Orchestrator) TransitionWithRetry(ctx context.Context, in *TransitionInput) (*TransitionOutput, error) {
	var out *TransitionOutput
	var err error
	attempts := commonerrors.GetRetryCount(commonerrors.ErrCodeSerializationConflict) + 1
	for i := 0; i < attempts; i++ {
		out, err = o.Transition(ctx, in)
		if err == nil || !commonerrors.IsSerializationConflict(err) {
			return out, err
		}
		o.logger.Warn("serialization conflict, retrying transition", map[string]interface{}{
			"applicationId": in.ApplicationID,
			"attempt":       i + 1,
		})
	}
	return out, err
}

// Transition moves an application to the requested status if the transition
// table allows it for the acting role. When the new status belongs to a
// different officer tier, the application is auto-assigned in the same
// transaction; an empty roster clears ownership but the transition itself
// still commits, and the stall sweep retries the assignment later.
func (o *Orchestrator) Transition(ctx context.Context, in *TransitionInput) (*TransitionOutput, error) {
	if _, ok := allStatuses[in.To]; !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, string(in.To))
	}

	if in.ActorRole != RoleApplicant {
		role, active, err := o.resolver.ActorRole(ctx, in.ActorID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOfficer, in.ActorID)
		}
		if !active {
			return nil, fmt.Errorf("%w: officer %s is inactive", ErrInvalidOfficer, in.ActorID)
		}
		if role != in.ActorRole {
			return nil, fmt.Errorf("%w: officer %s holds %s, not %s", ErrInvalidOfficer, in.ActorID, role, in.ActorRole)
		}
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	app, err := o.store.LockApplication(ctx, tx, in.ApplicationID)
	if err != nil {
		return nil, err
	}

	current, err := ParseStatus(app.Status)
	if err != nil {
		return nil, err
	}

	if !CanTransition(current, in.To, in.ActorRole) {
		metrics.TransitionsRejected.WithLabelValues(string(current), string(in.ActorRole)).Inc()
		return nil, TransitionError(current, in.To, in.ActorRole)
	}

	now := o.now().UTC()
	if err := o.store.UpdateStatus(ctx, tx, app.ID, in.To, now); err != nil {
		return nil, err
	}
	app.Status = string(in.To)
	app.UpdatedAt = now
	if current == StatusDraft && in.To == StatusSubmitted {
		app.SubmittedAt = &now
	}

	ev := &models.StatusEvent{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		FromStatus:    string(current),
		ToStatus:      string(in.To),
		OfficerID:     in.ActorID,
		Remarks:       in.Remarks,
		CreatedAt:     now,
	}
	if err := o.store.AppendStatusEvent(ctx, tx, ev); err != nil {
		return nil, err
	}

	var rec *models.AssignmentRecord
	if in.ActorRole == RoleAdmin && !o.adminAutoAssign && !in.To.Terminal() {
		err = o.releaseOwnership(ctx, tx, app, now)
	} else {
		rec, err = o.reconcileOwnership(ctx, tx, app, in.To, now)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition tx: %w", err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(current), string(in.To)).Inc()
	o.audit.RecordStatusEvent(ctx, ev)
	if rec != nil {
		o.audit.RecordAssignment(ctx, rec)
		metrics.AssignmentsTotal.WithLabelValues(rec.Action, rec.Role).Inc()
		o.notifyOfficer(ctx, rec)
	}
	o.notifyApplicant(ctx, app, in.To, in.Remarks)

	return &TransitionOutput{Application: app, Assignment: rec, Event: ev}, nil
}

// reconcileOwnership lines the application's owner up with the new status.
// Terminal and applicant-facing stages release the officer; a stage owned
// by a different tier triggers auto-assignment.
func (o *Orchestrator) reconcileOwnership(ctx context.Context, tx *sql.Tx, app *models.Application, to Status, now time.Time) (*models.AssignmentRecord, error) {
	if to.Terminal() {
		return nil, o.releaseOwnership(ctx, tx, app, now)
	}

	owner, ok := OwnerRole(to)
	if !ok || !OfficerTier(owner) {
		return nil, o.releaseOwnership(ctx, tx, app, now)
	}

	active, err := o.store.ActiveRecord(ctx, tx, app.ID)
	if err != nil {
		return nil, err
	}
	if active != nil && Role(active.Role) == owner {
		// Same tier keeps the case, e.g. approval then signature by EE.
		return nil, nil
	}

	rec, err := o.assigner.AssignInTx(ctx, tx, app, owner, models.ActionAssign, fmt.Sprintf("entered %s", to))
	if errors.Is(err, ErrNoOfficerAvailable) {
		o.logger.Warn("no officer available, committing unassigned", map[string]interface{}{
			"applicationId": app.ID,
			"status":        string(to),
			"role":          string(owner),
		})
		return nil, o.releaseOwnership(ctx, tx, app, now)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (o *Orchestrator) releaseOwnership(ctx context.Context, tx *sql.Tx, app *models.Application, now time.Time) error {
	if err := o.store.DeactivateRecords(ctx, tx, app.ID); err != nil {
		return err
	}
	if err := o.store.SetCurrentOfficer(ctx, tx, app.ID, nil, now); err != nil {
		return err
	}
	app.CurrentOfficerID = nil
	return nil
}

func (o *Orchestrator) notifyOfficer(ctx context.Context, rec *models.AssignmentRecord) {
	if _, err := o.notifier.Send(ctx, &notify.Input{
		RecipientID:      rec.OfficerID,
		RecipientType:    notify.RecipientTypeOfficer,
		NotificationType: notify.TypeCaseAssigned,
		ApplicationID:    rec.ApplicationID,
		Metadata: map[string]interface{}{
			"workload": rec.WorkloadAtAssignment,
		},
	}); err != nil {
		o.logger.Error("officer notification failed", map[string]interface{}{
			"error":         err,
			"applicationId": rec.ApplicationID,
			"officerId":     rec.OfficerID,
		})
	}
}

// notifyApplicant tells the applicant about milestones they have to act on
// or would want to know about. Routine hand-offs between officers stay
// internal.
func (o *Orchestrator) notifyApplicant(ctx context.Context, app *models.Application, to Status, remarks string) {
	var notificationType, priority string
	switch to {
	case StatusPaymentPending:
		notificationType, priority = notify.TypePaymentPending, "high"
	case StatusReturnedForCorrection:
		notificationType, priority = notify.TypeReturnedForFix, "high"
	case StatusCertificateIssued:
		notificationType, priority = notify.TypeCertificateIssued, "high"
	case StatusRejectedByJE, StatusRejectedByAE, StatusRejectedByEE, StatusRejectedByCE,
		StatusApprovedByCE, StatusPaymentFailed, StatusCompleted:
		notificationType = notify.TypeStatusChanged
	default:
		return
	}

	if _, err := o.notifier.Send(ctx, &notify.Input{
		RecipientID:      app.ApplicantID,
		RecipientType:    notify.RecipientTypeApplicant,
		NotificationType: notificationType,
		ApplicationID:    app.ID,
		Priority:         priority,
		Metadata: map[string]interface{}{
			"status":  app.Status,
			"remarks": remarks,
		},
	}); err != nil {
		o.logger.Error("applicant notification failed", map[string]interface{}{
			"error":         err,
			"applicationId": app.ID,
			"applicantId":   app.ApplicantID,
		})
	}
}
