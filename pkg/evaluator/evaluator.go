// Package evaluator checks a rule's prerequisites against a user context.
// Evaluation is a pure function of its two inputs: no clock, no I/O, no
// randomness, so identical inputs always reproduce identical detail.
package evaluator

import (
	"fmt"
	"strings"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// Result carries the per-prerequisite detail and the aggregate ratio.
type Result struct {
	Checks []contracts.PrerequisiteCheck
	Ratio  float64
}

// ManagerApprovalPending reports whether the result contains an
// unsatisfied manager-approval prerequisite. The resolver treats this as a
// hard override: no score can bypass required human approval.
func (r Result) ManagerApprovalPending() bool {
	for _, c := range r.Checks {
		if c.Prerequisite.Kind == contracts.PrereqManagerApproval && !c.Satisfied {
			return true
		}
	}
	return false
}

// Evaluate produces the satisfaction detail for every prerequisite of the
// rule. A rule with zero prerequisites has ratio 1.0.
func Evaluate(rule *contracts.PermissionRule, user *contracts.UserContext) Result {
	if len(rule.Prerequisites) == 0 {
		return Result{Ratio: 1.0}
	}

	checks := make([]contracts.PrerequisiteCheck, 0, len(rule.Prerequisites))
	satisfied := 0
	for _, p := range rule.Prerequisites {
		ok, reason := check(p, user)
		if ok {
			satisfied++
		}
		checks = append(checks, contracts.PrerequisiteCheck{
			Prerequisite: p,
			Satisfied:    ok,
			Reason:       reason,
		})
	}

	return Result{
		Checks: checks,
		Ratio:  float64(satisfied) / float64(len(rule.Prerequisites)),
	}
}

func check(p contracts.Prerequisite, user *contracts.UserContext) (bool, string) {
	switch p.Kind {
	case contracts.PrereqDepartment:
		if user.Department != "" {
			return true, fmt.Sprintf("department: %s", user.Department)
		}
		return false, "department not set"

	case contracts.PrereqTraining:
		return checkTraining(p.Name, user)

	case contracts.PrereqClearanceLevel:
		if user.ClearanceLevel >= p.Level {
			return true, fmt.Sprintf("clearance level %d meets required %d", user.ClearanceLevel, p.Level)
		}
		return false, fmt.Sprintf("clearance level %d below required %d", user.ClearanceLevel, p.Level)

	case contracts.PrereqRole:
		return checkRole(p.Name, user)

	case contracts.PrereqManagerApproval:
		// Never auto-satisfiable; standing signal that forces a ticket.
		return false, "requires external approval"

	default:
		return false, "unverifiable prerequisite"
	}
}

// checkTraining matches the required training name as a case-insensitive
// substring of any completed training, tolerating naming variance between
// the tracker and the training catalog. A bare "training" prerequisite
// with no name is met by any completed training.
func checkTraining(name string, user *contracts.UserContext) (bool, string) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		if len(user.CompletedTrainings) > 0 {
			return true, fmt.Sprintf("%d trainings completed", len(user.CompletedTrainings))
		}
		return false, "no trainings completed"
	}
	for _, t := range user.CompletedTrainings {
		if strings.Contains(strings.ToLower(t), want) {
			return true, fmt.Sprintf("training completed: %s", t)
		}
	}
	return false, fmt.Sprintf("training not completed: %s", name)
}

// checkRole matches the required role case-insensitively. A role
// prerequisite that names no specific role is met by any assigned role.
func checkRole(name string, user *contracts.UserContext) (bool, string) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		if user.Role != "" {
			return true, fmt.Sprintf("role: %s", user.Role)
		}
		return false, "role not set"
	}
	if strings.EqualFold(strings.TrimSpace(user.Role), want) {
		return true, fmt.Sprintf("role matches: %s", user.Role)
	}
	return false, fmt.Sprintf("role %q does not match required %q", user.Role, name)
}
