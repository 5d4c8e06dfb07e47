// internal/assignment/workload.go
package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"license-workflow/internal/workflow"
)

// candidate is one officer's standing in the selection order: live workload,
// when they last received anything, and a stable id for the final tie-break.
type candidate struct {
	officerID    string
	workload     int
	lastAssigned *time.Time
}

// WorkloadCalculator derives officer workloads from the assignment ledger.
// There is no cached counter anywhere; every number is computed from the
// rows visible to the current transaction, which is what makes concurrent
// assignment decisions safe under serializable isolation.
type WorkloadCalculator struct{}

// CurrentWorkload counts the applications actively assigned to the officer
// and still in a non-terminal status.
func (WorkloadCalculator) CurrentWorkload(ctx context.Context, tx *sql.Tx, officerID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
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

// candidatesForRole loads every active officer of the role together with
// their live workload and most recent assignment time, all in one query so
// the snapshot is consistent.
func (WorkloadCalculator) candidatesForRole(ctx context.Context, tx *sql.Tx, role workflow.Role) ([]candidate, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT o.id,
		       COUNT(r.id) FILTER (WHERE r.active AND NOT (a.status = ANY($2))) AS workload,
		       MAX(r.assigned_at) AS last_assigned
		FROM officers o
		LEFT JOIN assignment_records r ON r.officer_id = o.id
		LEFT JOIN applications a ON a.id = r.application_id
		WHERE o.role = $1 AND o.active
		GROUP BY o.id`,
		string(role), pq.Array(workflow.TerminalStatusList()))
	if err != nil {
		return nil, fmt.Errorf("candidates for role %s: %w", role, err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var last sql.NullTime
		if err := rows.Scan(&c.officerID, &c.workload, &last); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if last.Valid {
			t := last.Time
			c.lastAssigned = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// rankCandidates orders candidates by the selection rule: lowest workload
// first, then least recently assigned (never assigned counts as idle
// forever), then lowest officer id. The order is total, so two replicas
// looking at the same ledger pick the same officer.
func rankCandidates(cands []candidate) []candidate {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.workload != b.workload {
			return a.workload < b.workload
		}
		switch {
		case a.lastAssigned == nil && b.lastAssigned != nil:
			return true
		case a.lastAssigned != nil && b.lastAssigned == nil:
			return false
		case a.lastAssigned != nil && b.lastAssigned != nil:
			if !a.lastAssigned.Equal(*b.lastAssigned) {
				return a.lastAssigned.Before(*b.lastAssigned)
			}
		}
		return a.officerID < b.officerID
	})
	return cands
}
