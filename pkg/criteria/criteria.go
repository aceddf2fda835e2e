// Package criteria evaluates operator-supplied special-case guard
// expressions. Guards are CEL boolean expressions over the requesting user
// and the matched rule; a guard that evaluates true routes the request to
// human review before the score bands apply. Expressions are compiled once
// with hard cost limits and cached.
package criteria

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// Evaluator compiles and runs guard expressions.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEvaluator creates an evaluator with the guard environment: `user` and
// `rule` as dynamic maps plus the requested `permission` name.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.DynType),
		cel.Variable("rule", cel.DynType),
		cel.Variable("permission", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("criteria: create CEL environment: %w", err)
	}
	return &Evaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile validates an expression without evaluating it. Used by the
// training manager to reject malformed guards at save time.
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Matches evaluates every guard against the request. Evaluation is
// fail-closed toward review: a guard that errors at runtime counts as a
// match so a broken guard never silently widens auto-grant.
func (e *Evaluator) Matches(guards []string, user *contracts.UserContext, rule *contracts.PermissionRule, permission string) (bool, string) {
	if len(guards) == 0 {
		return false, ""
	}

	input := map[string]any{
		"permission": permission,
		"user": map[string]any{
			"id":                  user.UserID,
			"department":          user.Department,
			"role":                user.Role,
			"clearance_level":     user.ClearanceLevel,
			"current_permissions": user.CurrentPermissions,
			"completed_trainings": user.CompletedTrainings,
		},
		"rule": map[string]any{
			"type":       rule.Type,
			"name":       rule.Name,
			"priority":   rule.Priority.String(),
			"auto_grant": rule.AutoGrant,
			"criteria":   rule.Criteria,
		},
	}

	for _, g := range guards {
		prg, err := e.program(g)
		if err != nil {
			return true, fmt.Sprintf("guard %q failed to compile: %v", g, err)
		}
		out, _, err := prg.Eval(input)
		if err != nil {
			return true, fmt.Sprintf("guard %q failed to evaluate: %v", g, err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return true, fmt.Sprintf("guard %q did not produce a boolean", g)
		}
		if matched {
			return true, fmt.Sprintf("guard matched: %s", g)
		}
	}
	return false, ""
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[expr]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.cache[expr] = prg
	return prg, nil
}
