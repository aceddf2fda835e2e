// Package scoring computes the 0–100 priority score of a request. The
// model is deliberately additive and fully explainable: every point is
// traceable to one factor, which auditable access decisions require.
package scoring

import (
	"math"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

const (
	baseScore        = 50
	ratioWeight      = 30
	priorGrantBonus  = 10
	autoGrantBonus   = 10
	maxScore         = 100
	minScore         = 0
)

// Breakdown itemizes every contribution to a score.
type Breakdown struct {
	Base       int `json:"base"`
	Ratio      int `json:"satisfaction"`
	Priority   int `json:"priority"`
	PriorGrant int `json:"prior_grant"`
	AutoGrant  int `json:"auto_grant"`
	Total      int `json:"total"`
}

// Score computes the clamped priority score for a rule, a satisfaction
// ratio, and the user's request history.
func Score(rule *contracts.PermissionRule, ratio float64, user *contracts.UserContext) int {
	return Explain(rule, ratio, user).Total
}

// Explain computes the score with its full factor breakdown.
func Explain(rule *contracts.PermissionRule, ratio float64, user *contracts.UserContext) Breakdown {
	b := Breakdown{
		Base:     baseScore,
		Ratio:    int(math.Floor(ratioWeight * clampRatio(ratio))),
		Priority: rule.Priority.ScoreBonus(),
	}
	if user != nil && user.HasPriorGrant() {
		b.PriorGrant = priorGrantBonus
	}
	if rule.AutoGrant {
		b.AutoGrant = autoGrantBonus
	}

	total := b.Base + b.Ratio + b.Priority + b.PriorGrant + b.AutoGrant
	if total > maxScore {
		total = maxScore
	}
	if total < minScore {
		total = minScore
	}
	b.Total = total
	return b
}

func clampRatio(r float64) float64 {
	if r < 0 || math.IsNaN(r) {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
