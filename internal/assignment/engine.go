// internal/assignment/engine.go
package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"license-workflow/internal/audit"
	"license-workflow/internal/common/logger"
	"license-workflow/internal/common/metrics"
	"license-workflow/internal/directory"
	"license-workflow/internal/models"
	"license-workflow/internal/notify"
	"license-workflow/internal/workflow"
)

// Engine makes assignment decisions. All ledger reads and writes happen in
// the caller's serializable transaction; notifications and the audit mirror
// run after commit and never fail the decision.
type Engine struct {
	store    *workflow.Store
	dir      directory.Directory
	calc     WorkloadCalculator
	notifier notify.Notifier
	audit    audit.Recorder
	logger   logger.Logger
	now      func() time.Time
}

func NewEngine(store *workflow.Store, dir directory.Directory, notifier notify.Notifier, rec audit.Recorder, log logger.Logger) *Engine {
	return &Engine{
		store:    store,
		dir:      dir,
		notifier: notifier,
		audit:    rec,
		logger:   log.WithFields(map[string]interface{}{"component": "assignment"}),
		now:      time.Now,
	}
}

// AssignInTx picks the officer for the role, supersedes the active record
// and points the application at the new owner. Selection is deterministic:
// lowest workload, then least recently assigned, then lowest officer id.
func (e *Engine) AssignInTx(ctx context.Context, tx *sql.Tx, app *models.Application, role workflow.Role, action, reason string) (*models.AssignmentRecord, error) {
	cands, err := e.calc.candidatesForRole(ctx, tx, role)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		metrics.AssignmentsFailed.WithLabelValues(string(role)).Inc()
		return nil, fmt.Errorf("%w: no active officer with role %s", workflow.ErrNoOfficerAvailable, role)
	}

	chosen := rankCandidates(cands)[0]
	return e.recordInTx(ctx, tx, app, chosen.officerID, role, action, reason, chosen.workload)
}

// assignToInTx hands the application to a specific officer. Used by the
// reassignment path once the target has been validated.
func (e *Engine) assignToInTx(ctx context.Context, tx *sql.Tx, app *models.Application, officerID string, role workflow.Role, action, reason string) (*models.AssignmentRecord, error) {
	workload, err := e.calc.CurrentWorkload(ctx, tx, officerID)
	if err != nil {
		return nil, err
	}
	return e.recordInTx(ctx, tx, app, officerID, role, action, reason, workload)
}

func (e *Engine) recordInTx(ctx context.Context, tx *sql.Tx, app *models.Application, officerID string, role workflow.Role, action, reason string, workload int) (*models.AssignmentRecord, error) {
	now := e.now().UTC()

	var previous *string
	if app.CurrentOfficerID != nil {
		prev := *app.CurrentOfficerID
		previous = &prev
	}

	if err := e.store.DeactivateRecords(ctx, tx, app.ID); err != nil {
		return nil, err
	}

	rec := &models.AssignmentRecord{
		ID:                   uuid.New().String(),
		ApplicationID:        app.ID,
		PreviousOfficerID:    previous,
		OfficerID:            officerID,
		Action:               action,
		Role:                 string(role),
		WorkloadAtAssignment: workload,
		Reason:               reason,
		AssignedAt:           now,
		Active:               true,
	}
	if err := e.store.InsertRecord(ctx, tx, rec); err != nil {
		return nil, err
	}

	if err := e.store.SetCurrentOfficer(ctx, tx, app.ID, &officerID, now); err != nil {
		return nil, err
	}
	app.CurrentOfficerID = &officerID

	return rec, nil
}

// CurrentWorkload reports an officer's live open-case count outside any
// assignment decision, for statistics and the public surface. Decisions
// never use this; they read the ledger inside their own transaction.
func (e *Engine) CurrentWorkload(ctx context.Context, officerID string) (int, error) {
	var n int
	err := e.store.DB().QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM assignment_records r
		JOIN applications a ON a.id = r.application_id
		WHERE r.officer_id = $1 AND r.active
		  AND NOT (a.status = ANY($2))`,
		officerID, pq.Array(workflow.TerminalStatusList())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("workload for officer %s: %w", officerID, err)
	}
	return n, nil
}

// Accept marks the active assignment as acknowledged by its owner. Only
// the owning officer can accept; accepting twice is a no-op.
func (e *Engine) Accept(ctx context.Context, applicationID, officerID string) error {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := e.store.LockApplication(ctx, tx, applicationID); err != nil {
		return err
	}

	active, err := e.store.ActiveRecord(ctx, tx, applicationID)
	if err != nil {
		return err
	}
	if active == nil || active.OfficerID != officerID {
		return fmt.Errorf("%w: officer %s does not hold application %s", workflow.ErrInvalidOfficer, officerID, applicationID)
	}
	if active.AcceptedAt != nil {
		return nil
	}

	if err := e.store.MarkAccepted(ctx, tx, active.ID, e.now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// Assign runs a standalone assignment for an application in its current
// stage, outside any transition. It opens its own transaction.
func (e *Engine) Assign(ctx context.Context, applicationID string) (*models.AssignmentRecord, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin assignment tx: %w", err)
	}
	defer tx.Rollback()

	app, err := e.store.LockApplication(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	status, err := workflow.ParseStatus(app.Status)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, fmt.Errorf("%w: application %s is in terminal status %s", workflow.ErrNoOfficerAvailable, applicationID, status)
	}
	role, ok := workflow.OwnerRole(status)
	if !ok || !workflow.OfficerTier(role) {
		return nil, fmt.Errorf("%w: status %s has no officer stage", workflow.ErrNoOfficerAvailable, status)
	}

	rec, err := e.AssignInTx(ctx, tx, app, role, models.ActionAssign, "auto-assignment")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assignment tx: %w", err)
	}

	e.AfterCommit(ctx, rec, notify.TypeCaseAssigned, nil)
	return rec, nil
}

// AfterCommit records metrics, mirrors the event and notifies the new
// owner. Failures are logged, not returned; the ledger row already exists.
func (e *Engine) AfterCommit(ctx context.Context, rec *models.AssignmentRecord, notificationType string, metadata map[string]interface{}) {
	metrics.AssignmentsTotal.WithLabelValues(rec.Action, rec.Role).Inc()
	e.audit.RecordAssignment(ctx, rec)

	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["workload"] = rec.WorkloadAtAssignment
	if rec.Reason != "" {
		metadata["reason"] = rec.Reason
	}

	if _, err := e.notifier.Send(ctx, &notify.Input{
		RecipientID:      rec.OfficerID,
		RecipientType:    notify.RecipientTypeOfficer,
		NotificationType: notificationType,
		ApplicationID:    rec.ApplicationID,
		Metadata:         metadata,
	}); err != nil {
		e.logger.Error("assignment notification failed", map[string]interface{}{
			"error":         err,
			"applicationId": rec.ApplicationID,
			"officerId":     rec.OfficerID,
		})
	}
}
