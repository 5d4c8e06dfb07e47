// internal/assignment/escalation.go
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"license-workflow/internal/common/logger"
	"license-workflow/internal/common/metrics"
	"license-workflow/internal/models"
	"license-workflow/internal/notify"
	"license-workflow/internal/workflow"
)

var ErrNoEscalationPath = errors.New("NO_ESCALATION_PATH")

// StalledCase is one application the sweep should act on.
type StalledCase struct {
	ApplicationID string
	OfficerID     *string
	StalledSince  time.Time
}

// Escalator moves stalled applications to another officer: first a peer at
// the same tier, then one rung up the ladder once the peer budget is spent.
// Every decision is re-checked inside its own transaction, so running two
// sweeps back to back escalates each stalled application exactly once.
type Escalator struct {
	engine *Engine
	ladder *Ladder
	store  *workflow.Store
	logger logger.Logger
	now    func() time.Time
}

func NewEscalator(engine *Engine, ladder *Ladder, store *workflow.Store, log logger.Logger) *Escalator {
	return &Escalator{
		engine: engine,
		ladder: ladder,
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "escalation"}),
		now:    time.Now,
	}
}

// FindStalled returns applications whose active assignment is older than the
// stall threshold and whose status has not advanced since, plus unassigned
// non-terminal applications, which are eligible immediately: there is no
// owner to wait on. The stall clock is the later of the assignment and the
// last status change: an officer working through same-tier stages keeps the
// record but keeps bumping updated_at.
func (e *Escalator) FindStalled(ctx context.Context) ([]StalledCase, error) {
	cutoff := e.now().UTC().AddDate(0, 0, -e.ladder.StallDays)

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT r.application_id, r.officer_id, GREATEST(r.assigned_at, a.updated_at)
		FROM assignment_records r
		JOIN applications a ON a.id = r.application_id
		WHERE r.active
		  AND r.assigned_at < $1
		  AND a.updated_at < $1
		  AND NOT (a.status = ANY($2))
		ORDER BY r.assigned_at`,
		cutoff, pq.Array(workflow.TerminalStatusList()))
	if err != nil {
		return nil, fmt.Errorf("find stalled: %w", err)
	}
	defer rows.Close()

	var out []StalledCase
	for rows.Next() {
		var c StalledCase
		var officerID string
		if err := rows.Scan(&c.ApplicationID, &officerID, &c.StalledSince); err != nil {
			return nil, fmt.Errorf("scan stalled case: %w", err)
		}
		c.OfficerID = &officerID
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unassigned, err := e.store.ListUnassigned(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range unassigned {
		out = append(out, StalledCase{ApplicationID: id, StalledSince: cutoff})
	}

	return out, nil
}

// Escalate handles one stalled application. It returns (nil, nil) when the
// application no longer needs anything, which is what makes the sweep
// idempotent: the freshness check runs against the locked row, so a second
// pass over the same candidate list is a no-op.
func (e *Escalator) Escalate(ctx context.Context, applicationID, reason string) (*models.AssignmentRecord, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin escalation tx: %w", err)
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
		return nil, nil
	}
	stageRole, ok := workflow.OwnerRole(status)
	if !ok || !workflow.OfficerTier(stageRole) {
		return nil, nil
	}

	active, err := e.store.ActiveRecord(ctx, tx, applicationID)
	if err != nil {
		return nil, err
	}

	cutoff := e.now().UTC().AddDate(0, 0, -e.ladder.StallDays)

	// Ownerless application: retry plain assignment at the stage tier.
	if active == nil {
		rec, err := e.engine.AssignInTx(ctx, tx, app, stageRole, models.ActionAssign, "retry after no officer available")
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit escalation tx: %w", err)
		}
		e.engine.AfterCommit(ctx, rec, notify.TypeCaseAssigned, nil)
		return rec, nil
	}

	// Someone already moved it, or advanced its status, since the candidate
	// list was built. A same-tier officer keeps the record across stages,
	// so the assignment age alone says nothing about progress.
	stalledSince := active.AssignedAt
	if app.UpdatedAt.After(stalledSince) {
		stalledSince = app.UpdatedAt
	}
	if !stalledSince.Before(cutoff) {
		return nil, nil
	}

	currentRole, err := workflow.ParseRole(active.Role)
	if err != nil {
		return nil, err
	}

	escalations, err := e.escalationCount(ctx, tx, applicationID, currentRole)
	if err != nil {
		return nil, err
	}

	stalledDays := int(e.now().UTC().Sub(stalledSince).Hours() / 24)
	if reason == "" {
		reason = fmt.Sprintf("stalled for %d days with officer %s", stalledDays, active.OfficerID)
	}

	var rec *models.AssignmentRecord
	if escalations < e.ladder.MaxReassignments {
		rec, err = e.assignPeer(ctx, tx, app, currentRole, active.OfficerID, reason)
		if err != nil && !errors.Is(err, workflow.ErrNoOfficerAvailable) {
			return nil, err
		}
	}

	// Peer budget spent, or no peer exists: climb the ladder.
	if rec == nil {
		rec, err = e.climb(ctx, tx, app, currentRole, reason)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit escalation tx: %w", err)
	}

	metrics.EscalationsTotal.WithLabelValues(rec.Role).Inc()
	e.engine.AfterCommit(ctx, rec, notify.TypeCaseEscalated, map[string]interface{}{
		"stalledDays": stalledDays,
	})
	return rec, nil
}

// assignPeer hands the application to the best-ranked officer of the same
// tier, excluding the stalled owner.
func (e *Escalator) assignPeer(ctx context.Context, tx *sql.Tx, app *models.Application, role workflow.Role, excludeOfficer, reason string) (*models.AssignmentRecord, error) {
	cands, err := e.engine.calc.candidatesForRole(ctx, tx, role)
	if err != nil {
		return nil, err
	}

	filtered := cands[:0]
	for _, c := range cands {
		if c.officerID != excludeOfficer {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w: no peer for role %s", workflow.ErrNoOfficerAvailable, role)
	}

	chosen := rankCandidates(filtered)[0]
	return e.engine.recordInTx(ctx, tx, app, chosen.officerID, role, models.ActionEscalate, reason, chosen.workload)
}

// climb walks up the ladder from the given tier until a staffed tier is
// found. Running out of rungs is NO_ESCALATION_PATH.
func (e *Escalator) climb(ctx context.Context, tx *sql.Tx, app *models.Application, from workflow.Role, reason string) (*models.AssignmentRecord, error) {
	role := from
	for {
		next, ok := e.ladder.NextTier(role)
		if !ok {
			return nil, fmt.Errorf("%w: application %s stalled at top tier %s", ErrNoEscalationPath, app.ID, role)
		}
		role = next

		rec, err := e.engine.AssignInTx(ctx, tx, app, role, models.ActionEscalate, reason)
		if errors.Is(err, workflow.ErrNoOfficerAvailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// escalationCount returns how many lateral escalations the application has
// had at the given tier. A lateral move hands the case to a same-tier peer,
// so its predecessor held the same role; a climb arrival came from a lower
// tier and does not spend the peer budget.
func (e *Escalator) escalationCount(ctx context.Context, tx *sql.Tx, applicationID string, role workflow.Role) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM assignment_records r
		JOIN officers o ON o.id = r.previous_officer_id
		WHERE r.application_id = $1 AND r.action = $2 AND r.role = $3 AND o.role = $3`,
		applicationID, models.ActionEscalate, string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("escalation count for %s: %w", applicationID, err)
	}
	return n, nil
}
