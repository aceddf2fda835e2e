// Package contracts defines the shared value types of the access request
// evaluation core: permission rules, user context, evaluations, and the
// training configuration record. All types here are plain data — behavior
// lives in the evaluator, scorer, and resolver packages.
package contracts

import "strings"

// Priority is the ordinal priority level of a permission rule.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// ParsePriority maps a raw tracker cell to a priority ordinal.
// Unrecognized values default to Medium so one odd row never
// rejects a whole sync.
func ParsePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// ScoreBonus returns the additive score contribution of the priority level.
func (p Priority) ScoreBonus() int {
	switch p {
	case PriorityMedium:
		return 7
	case PriorityHigh:
		return 14
	case PriorityCritical:
		return 20
	default:
		return 0
	}
}

// PrerequisiteKind classifies a normalized prerequisite descriptor.
type PrerequisiteKind string

const (
	PrereqDepartment      PrerequisiteKind = "department"
	PrereqTraining        PrerequisiteKind = "training"
	PrereqClearanceLevel  PrerequisiteKind = "clearance_level"
	PrereqManagerApproval PrerequisiteKind = "manager_approval"
	PrereqRole            PrerequisiteKind = "role"
	PrereqGeneric         PrerequisiteKind = "generic"
)

// Prerequisite is a typed condition a user must meet for a permission.
// Name carries the training or role name where the kind has one, Level
// carries the minimum clearance for clearance prerequisites, and Raw
// preserves the original tracker text for audit output.
type Prerequisite struct {
	Kind  PrerequisiteKind `json:"kind"`
	Name  string           `json:"name,omitempty"`
	Level int              `json:"level,omitempty"`
	Raw   string           `json:"raw"`
}

// PermissionRule is one normalized row of the master tracker. Identity is
// the (Type, Name) pair. Rules are immutable once produced by a sync; a
// re-sync replaces the full set rather than patching individual rules.
type PermissionRule struct {
	Type          string         `json:"permission_type"`
	Name          string         `json:"permission_name"`
	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`
	Criteria      string         `json:"criteria,omitempty"`
	Priority      Priority       `json:"priority"`
	AutoGrant     bool           `json:"auto_grant"`
}

// Key returns the unique identity key of the rule.
func (r *PermissionRule) Key() string {
	return r.Type + "/" + r.Name
}

// RequiresManagerApproval reports whether the rule carries a
// manager-approval prerequisite. Such rules can never be auto-granted.
func (r *PermissionRule) RequiresManagerApproval() bool {
	for _, p := range r.Prerequisites {
		if p.Kind == PrereqManagerApproval {
			return true
		}
	}
	return false
}
