// internal/workflow/assigner.go
package workflow

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"license-workflow/internal/models"
)

var (
	ErrNoOfficerAvailable = errors.New("NO_OFFICER_AVAILABLE")
	ErrInvalidOfficer     = errors.New("INVALID_OFFICER")
)

// Assigner picks an owner for an application inside the caller's
// transaction. The orchestrator holds one so a status change and the
// resulting assignment commit or roll back together.
type Assigner interface {
	AssignInTx(ctx context.Context, tx *sql.Tx, app *models.Application, role Role, action, reason string) (*models.AssignmentRecord, error)
}

// TerminalStatusList returns the terminal statuses as raw strings, in a
// stable order, for use in SQL predicates.
func TerminalStatusList() []string {
	out := make([]string, 0, len(terminalStatuses))
	for s := range terminalStatuses {
		out = append(out, string(s))
	}
	sort.Strings(out)
	return out
}
