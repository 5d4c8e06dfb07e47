// internal/assignment/ladder.go
package assignment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"

	"license-workflow/internal/workflow"
)

var ErrLadderInvalid = errors.New("ESCALATION_LADDER_INVALID")

// Ladder is the escalation policy: the ordered chain of officer tiers plus
// the per-tier peer-retry budget. It is loaded once at startup and never
// mutated, so reads need no locking.
type Ladder struct {
	Tiers            []workflow.Role `json:"tiers"`
	MaxReassignments int             `json:"maxReassignments"`
	StallDays        int             `json:"stallDays"`

	index map[workflow.Role]int
}

const ladderSchema = `{
	"type": "object",
	"required": ["tiers", "maxReassignments", "stallDays"],
	"properties": {
		"tiers": {
			"type": "array",
			"minItems": 2,
			"items": {"type": "string"},
			"uniqueItems": true
		},
		"maxReassignments": {"type": "integer", "minimum": 0},
		"stallDays": {"type": "integer", "minimum": 1}
	},
	"additionalProperties": false
}`

// LoadLadder reads and validates the escalation policy file.
func LoadLadder(path string) (*Ladder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read escalation ladder: %w", err)
	}
	return ParseLadder(raw)
}

// ParseLadder validates the policy document against its schema before
// decoding, so a malformed file fails loudly at startup instead of
// producing a silently wrong escalation path.
func ParseLadder(raw []byte) (*Ladder, error) {
	schemaLoader := gojsonschema.NewStringLoader(ladderSchema)
	documentLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLadderInvalid, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %v", ErrLadderInvalid, errs)
	}

	var l Ladder
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLadderInvalid, err)
	}

	l.index = make(map[workflow.Role]int, len(l.Tiers))
	for i, tier := range l.Tiers {
		if _, err := workflow.ParseRole(string(tier)); err != nil {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrLadderInvalid, tier)
		}
		if !workflow.OfficerTier(tier) {
			return nil, fmt.Errorf("%w: role %s cannot own applications", ErrLadderInvalid, tier)
		}
		l.index[tier] = i
	}
	return &l, nil
}

// DefaultLadder is the review chain used when no policy file is configured.
func DefaultLadder() *Ladder {
	l := &Ladder{
		Tiers: []workflow.Role{
			workflow.RoleJuniorEngineer,
			workflow.RoleAssistantEngineer,
			workflow.RoleExecutiveEngineer,
			workflow.RoleChiefEngineer,
		},
		MaxReassignments: 2,
		StallDays:        7,
	}
	l.index = make(map[workflow.Role]int, len(l.Tiers))
	for i, tier := range l.Tiers {
		l.index[tier] = i
	}
	return l
}

// NextTier returns the role one rung above the given one. The second return
// is false at the top of the ladder or for roles outside it.
func (l *Ladder) NextTier(role workflow.Role) (workflow.Role, bool) {
	i, ok := l.index[role]
	if !ok || i+1 >= len(l.Tiers) {
		return "", false
	}
	return l.Tiers[i+1], true
}

// Contains reports whether the role sits on the ladder at all.
func (l *Ladder) Contains(role workflow.Role) bool {
	_, ok := l.index[role]
	return ok
}
