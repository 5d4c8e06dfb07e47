// internal/workflow/store.go
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"license-workflow/internal/models"
)

var ErrApplicationNotFound = errors.New("APPLICATION_NOT_FOUND")

// Store is the persistence boundary for applications, the assignment ledger
// and the status journal. Every mutating method takes the caller's *sql.Tx:
// the orchestrator and the engines decide the unit of work, the store never
// commits on its own.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only queries that do not need
// the transaction discipline of the mutating methods.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Begin opens the serializable transaction every decision runs in. The
// serializable level is what keeps two concurrent assignment decisions from
// both reading the same pre-increment workload.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// LockApplication loads an application and takes an exclusive row lock so a
// transition and a reassignment on the same application cannot interleave.
func (s *Store) LockApplication(ctx context.Context, tx *sql.Tx, id string) (*models.Application, error) {
	var app models.Application
	err := tx.QueryRowContext(ctx, `
		SELECT id, applicant_id, license_type, status, current_officer_id, submitted_at, updated_at
		FROM applications
		WHERE id = $1
		FOR UPDATE`, id).
		Scan(&app.ID, &app.ApplicantID, &app.LicenseType, &app.Status,
			&app.CurrentOfficerID, &app.SubmittedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock application %s: %w", id, err)
	}
	return &app, nil
}

// UpdateStatus applies a new status to a locked application.
func (s *Store) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status Status, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), now)
	if err != nil {
		return fmt.Errorf("update status for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, id)
	}
	return nil
}

// SetCurrentOfficer records the application's owner; nil clears it.
func (s *Store) SetCurrentOfficer(ctx context.Context, tx *sql.Tx, id string, officerID *string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE applications SET current_officer_id = $2, updated_at = $3 WHERE id = $1`,
		id, officerID, now)
	if err != nil {
		return fmt.Errorf("set current officer for %s: %w", id, err)
	}
	return nil
}

// ActiveRecord returns the single active assignment record for an
// application, or nil when it is unassigned.
func (s *Store) ActiveRecord(ctx context.Context, tx *sql.Tx, applicationID string) (*models.AssignmentRecord, error) {
	var rec models.AssignmentRecord
	err := tx.QueryRowContext(ctx, `
		SELECT id, application_id, previous_officer_id, officer_id, action, role,
		       workload_at_assignment, reason, assigned_at, accepted_at, active
		FROM assignment_records
		WHERE application_id = $1 AND active`, applicationID).
		Scan(&rec.ID, &rec.ApplicationID, &rec.PreviousOfficerID, &rec.OfficerID,
			&rec.Action, &rec.Role, &rec.WorkloadAtAssignment, &rec.Reason,
			&rec.AssignedAt, &rec.AcceptedAt, &rec.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active record for %s: %w", applicationID, err)
	}
	return &rec, nil
}

// DeactivateRecords flips off any active record for the application. Records
// are never deleted; supersede is the only mutation the ledger allows.
func (s *Store) DeactivateRecords(ctx context.Context, tx *sql.Tx, applicationID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE assignment_records SET active = false
		WHERE application_id = $1 AND active`, applicationID)
	if err != nil {
		return fmt.Errorf("deactivate records for %s: %w", applicationID, err)
	}
	return nil
}

// InsertRecord appends a new ownership event to the ledger.
func (s *Store) InsertRecord(ctx context.Context, tx *sql.Tx, rec *models.AssignmentRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO assignment_records (
			id, application_id, previous_officer_id, officer_id, action, role,
			workload_at_assignment, reason, assigned_at, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.ApplicationID, rec.PreviousOfficerID, rec.OfficerID,
		rec.Action, rec.Role, rec.WorkloadAtAssignment, rec.Reason,
		rec.AssignedAt, rec.Active)
	if err != nil {
		return fmt.Errorf("insert assignment record for %s: %w", rec.ApplicationID, err)
	}
	return nil
}

// MarkAccepted stamps the acceptance time on an assignment record.
func (s *Store) MarkAccepted(ctx context.Context, tx *sql.Tx, recordID string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE assignment_records SET accepted_at = $2 WHERE id = $1 AND active`,
		recordID, now)
	if err != nil {
		return fmt.Errorf("mark accepted %s: %w", recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark accepted %s: record not active", recordID)
	}
	return nil
}

// AppendStatusEvent journals one status change.
func (s *Store) AppendStatusEvent(ctx context.Context, tx *sql.Tx, ev *models.StatusEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO status_events (id, application_id, from_status, to_status, officer_id, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, ev.ApplicationID, ev.FromStatus, ev.ToStatus, ev.OfficerID, ev.Remarks, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append status event for %s: %w", ev.ApplicationID, err)
	}
	return nil
}

// AssignmentHistory returns the full ownership trail for an application,
// oldest first. Superseded records are included; the ledger never forgets.
func (s *Store) AssignmentHistory(ctx context.Context, applicationID string) ([]models.AssignmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, previous_officer_id, officer_id, action, role,
		       workload_at_assignment, reason, assigned_at, accepted_at, active
		FROM assignment_records
		WHERE application_id = $1
		ORDER BY assigned_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("assignment history for %s: %w", applicationID, err)
	}
	defer rows.Close()

	var out []models.AssignmentRecord
	for rows.Next() {
		var rec models.AssignmentRecord
		if err := rows.Scan(&rec.ID, &rec.ApplicationID, &rec.PreviousOfficerID, &rec.OfficerID,
			&rec.Action, &rec.Role, &rec.WorkloadAtAssignment, &rec.Reason,
			&rec.AssignedAt, &rec.AcceptedAt, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan assignment record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StatusHistory returns the status journal for an application, oldest first.
func (s *Store) StatusHistory(ctx context.Context, applicationID string) ([]models.StatusEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, from_status, to_status, officer_id, remarks, created_at
		FROM status_events
		WHERE application_id = $1
		ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("status history for %s: %w", applicationID, err)
	}
	defer rows.Close()

	var out []models.StatusEvent
	for rows.Next() {
		var ev models.StatusEvent
		if err := rows.Scan(&ev.ID, &ev.ApplicationID, &ev.FromStatus, &ev.ToStatus,
			&ev.OfficerID, &ev.Remarks, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListUnassigned returns non-terminal applications with no active owner in an
// officer-staffed stage. These are the day-zero stall candidates the sweep
// picks up after a NoOfficerAvailable outcome.
func (s *Store) ListUnassigned(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.status
		FROM applications a
		WHERE a.current_officer_id IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM assignment_records r
			WHERE r.application_id = a.id AND r.active
		  )
		ORDER BY a.id`)
	if err != nil {
		return nil, fmt.Errorf("list unassigned: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan unassigned: %w", err)
		}
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		if st.Terminal() {
			continue
		}
		if owner, ok := OwnerRole(st); !ok || !OfficerTier(owner) {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
