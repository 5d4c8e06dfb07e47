// internal/directory/directory.go
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"license-workflow/internal/models"
	"license-workflow/internal/workflow"
)

var ErrOfficerNotFound = errors.New("OFFICER_NOT_FOUND")

// Directory resolves officers and their roles. The assignment and
// escalation engines only ever see this interface so tests can swap in a
// fixed roster.
type Directory interface {
	// Officer returns a single officer by id, active or not.
	Officer(ctx context.Context, id string) (*models.Officer, error)
	// ActiveByRole returns every active officer holding the given role.
	ActiveByRole(ctx context.Context, role workflow.Role) ([]models.Officer, error)
}

// PostgresDirectory reads the officers table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Officer(ctx context.Context, id string) (*models.Officer, error) {
	var o models.Officer
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, employee_id, role, email, phone, active
		FROM officers WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.EmployeeID, &o.Role, &o.Email, &o.Phone, &o.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOfficerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load officer %s: %w", id, err)
	}
	return &o, nil
}

// ActorRole implements workflow.RoleResolver.
func (d *PostgresDirectory) ActorRole(ctx context.Context, officerID string) (workflow.Role, bool, error) {
	o, err := d.Officer(ctx, officerID)
	if err != nil {
		return "", false, err
	}
	role, err := workflow.ParseRole(o.Role)
	if err != nil {
		return "", false, err
	}
	return role, o.Active, nil
}

func (d *PostgresDirectory) ActiveByRole(ctx context.Context, role workflow.Role) ([]models.Officer, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, employee_id, role, email, phone, active
		FROM officers
		WHERE role = $1 AND active
		ORDER BY id`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list officers for role %s: %w", role, err)
	}
	defer rows.Close()

	var out []models.Officer
	for rows.Next() {
		var o models.Officer
		if err := rows.Scan(&o.ID, &o.Name, &o.EmployeeID, &o.Role, &o.Email, &o.Phone, &o.Active); err != nil {
			return nil, fmt.Errorf("scan officer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
