// internal/assignment/reassign.go
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"license-workflow/internal/models"
	"license-workflow/internal/notify"
	"license-workflow/internal/workflow"
)

var (
	// ErrInvalidOfficer is shared with the orchestrator's actor checks.
	ErrInvalidOfficer = workflow.ErrInvalidOfficer

	ErrReasonRequired = errors.New("REASON_REQUIRED")
)

type ReassignInput struct {
	ApplicationID string
	TargetOfficer string
	Reason        string
	ActorRole     workflow.Role
	AdminOverride bool
}

// Reassign hands an application to a named officer. Only supervisory roles
// may call it. The target must be active and hold the role the current
// stage belongs to; an admin actor may skip the role match when the
// override flag is on, but never the officer-tier and active checks.
func (e *Engine) Reassign(ctx context.Context, in *ReassignInput) (*models.AssignmentRecord, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: reassignment needs a reason", ErrReasonRequired)
	}
	if !workflow.Supervisory(in.ActorRole) {
		return nil, fmt.Errorf("%w: role %s may not reassign cases", ErrInvalidOfficer, in.ActorRole)
	}

	target, err := e.dir.Officer(ctx, in.TargetOfficer)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOfficer, in.TargetOfficer)
	}
	if !target.Active {
		return nil, fmt.Errorf("%w: officer %s is inactive", ErrInvalidOfficer, in.TargetOfficer)
	}
	targetRole, err := workflow.ParseRole(target.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: officer %s has unknown role %q", ErrInvalidOfficer, in.TargetOfficer, target.Role)
	}
	if !workflow.OfficerTier(targetRole) {
		return nil, fmt.Errorf("%w: role %s cannot own applications", ErrInvalidOfficer, targetRole)
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reassignment tx: %w", err)
	}
	defer tx.Rollback()

	app, err := e.store.LockApplication(ctx, tx, in.ApplicationID)
	if err != nil {
		return nil, err
	}

	status, err := workflow.ParseStatus(app.Status)
	if err != nil {
		return nil, err
	}
	if status.Terminal() {
		return nil, fmt.Errorf("%w: application %s is already %s", ErrInvalidOfficer, in.ApplicationID, status)
	}

	if app.CurrentOfficerID != nil && *app.CurrentOfficerID == in.TargetOfficer {
		return nil, fmt.Errorf("%w: officer %s already owns application %s", ErrInvalidOfficer, in.TargetOfficer, in.ApplicationID)
	}

	stageRole, hasStage := workflow.OwnerRole(status)
	adminSkip := in.ActorRole == workflow.RoleAdmin && in.AdminOverride
	if !adminSkip {
		if !hasStage || !workflow.OfficerTier(stageRole) {
			return nil, fmt.Errorf("%w: status %s has no officer stage", ErrInvalidOfficer, status)
		}
		if targetRole != stageRole {
			return nil, fmt.Errorf("%w: stage %s needs role %s, officer %s holds %s",
				ErrInvalidOfficer, status, stageRole, in.TargetOfficer, targetRole)
		}
	}

	rec, err := e.assignToInTx(ctx, tx, app, in.TargetOfficer, targetRole, models.ActionReassign, in.Reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reassignment tx: %w", err)
	}

	e.AfterCommit(ctx, rec, notify.TypeCaseReassigned, nil)
	return rec, nil
}
