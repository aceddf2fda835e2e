//go:build property
// +build property

// Property-based tests for the scoring model.
package scoring

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// TestScoreBounds verifies every score lands in [0, 100].
// Property: 0 <= Score(rule, ratio, user) <= 100 for any inputs
func TestScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("scores stay within [0, 100]", prop.ForAll(
		func(ratio float64, priority int, autoGrant, priorGrant bool) bool {
			rule := &contracts.PermissionRule{
				Priority:  contracts.Priority(priority),
				AutoGrant: autoGrant,
			}
			var user *contracts.UserContext
			if priorGrant {
				user = &contracts.UserContext{
					History: []contracts.Outcome{
						{Permission: "x", Decision: contracts.DecisionGrant},
					},
				}
			}
			s := Score(rule, ratio, user)
			return s >= 0 && s <= 100
		},
		gen.Float64Range(-10, 10),
		gen.IntRange(-2, 8),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestScoreMonotonicInRatio verifies a higher satisfaction ratio never
// lowers the score, holding everything else fixed.
// Property: r1 <= r2 implies Score(rule, r1, u) <= Score(rule, r2, u)
func TestScoreMonotonicInRatio(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("score is monotonic in the satisfaction ratio", prop.ForAll(
		func(r1, r2 float64, priority int, autoGrant bool) bool {
			if r1 > r2 {
				r1, r2 = r2, r1
			}
			rule := &contracts.PermissionRule{
				Priority:  contracts.Priority(priority),
				AutoGrant: autoGrant,
			}
			return Score(rule, r1, nil) <= Score(rule, r2, nil)
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.IntRange(0, 3),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
