// internal/assignment/ladder_test.go
package assignment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"license-workflow/internal/workflow"
)

func TestParseLadder_Valid(t *testing.T) {
	raw := []byte(`{
		"tiers": ["junior_engineer", "assistant_engineer", "executive_engineer"],
		"maxReassignments": 1,
		"stallDays": 5
	}`)

	l, err := ParseLadder(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, l.MaxReassignments)
	assert.Equal(t, 5, l.StallDays)
	assert.True(t, l.Contains(workflow.RoleAssistantEngineer))
	assert.False(t, l.Contains(workflow.RoleChiefEngineer))

	next, ok := l.NextTier(workflow.RoleJuniorEngineer)
	require.True(t, ok)
	assert.Equal(t, workflow.RoleAssistantEngineer, next)
}

func TestParseLadder_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "missing tiers",
			raw:  `{"maxReassignments": 2, "stallDays": 7}`,
		},
		{
			name: "single tier is not a ladder",
			raw:  `{"tiers": ["junior_engineer"], "maxReassignments": 2, "stallDays": 7}`,
		},
		{
			name: "duplicate tiers",
			raw:  `{"tiers": ["junior_engineer", "junior_engineer"], "maxReassignments": 2, "stallDays": 7}`,
		},
		{
			name: "negative reassignment budget",
			raw:  `{"tiers": ["junior_engineer", "assistant_engineer"], "maxReassignments": -1, "stallDays": 7}`,
		},
		{
			name: "zero stall days",
			raw:  `{"tiers": ["junior_engineer", "assistant_engineer"], "maxReassignments": 2, "stallDays": 0}`,
		},
		{
			name: "unknown tier role",
			raw:  `{"tiers": ["junior_engineer", "grandmaster_engineer"], "maxReassignments": 2, "stallDays": 7}`,
		},
		{
			name: "applicant cannot be a tier",
			raw:  `{"tiers": ["applicant", "junior_engineer"], "maxReassignments": 2, "stallDays": 7}`,
		},
		{
			name: "unexpected extra field",
			raw:  `{"tiers": ["junior_engineer", "assistant_engineer"], "maxReassignments": 2, "stallDays": 7, "color": "red"}`,
		},
		{
			name: "not json at all",
			raw:  `tiers: [je, ae]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLadder([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrLadderInvalid))
		})
	}
}

func TestDefaultLadder(t *testing.T) {
	l := DefaultLadder()
	assert.Equal(t, []workflow.Role{
		workflow.RoleJuniorEngineer,
		workflow.RoleAssistantEngineer,
		workflow.RoleExecutiveEngineer,
		workflow.RoleChiefEngineer,
	}, l.Tiers)
	assert.Equal(t, 2, l.MaxReassignments)
	assert.Equal(t, 7, l.StallDays)
}

func TestLadder_NextTier(t *testing.T) {
	l := DefaultLadder()

	next, ok := l.NextTier(workflow.RoleExecutiveEngineer)
	require.True(t, ok)
	assert.Equal(t, workflow.RoleChiefEngineer, next)

	_, ok = l.NextTier(workflow.RoleChiefEngineer)
	assert.False(t, ok, "the top tier has nowhere to go")

	_, ok = l.NextTier(workflow.RoleClerk)
	assert.False(t, ok, "roles off the ladder have no next tier")
}
