package contracts

import "time"

// Decision is the terminal outcome of a request evaluation.
type Decision string

const (
	DecisionGrant  Decision = "GRANT"
	DecisionTicket Decision = "CREATE_TICKET"
	// DecisionReject is the single needs-human-review-with-low-priority
	// outcome. The observed score bands do not distinguish a permanent
	// denial from "insufficient information"; ReasonCode carries the
	// distinction for human readers.
	DecisionReject Decision = "REJECT"
)

// PrerequisiteCheck is the per-descriptor pass/fail detail of an evaluation.
type PrerequisiteCheck struct {
	Prerequisite Prerequisite `json:"prerequisite"`
	Satisfied    bool         `json:"satisfied"`
	Reason       string       `json:"reason"`
}

// RequestEvaluation is the transient result of evaluating one access
// request. Score and Decision are pure functions of the rule, the user
// context, and the fixed scoring policy — identical inputs always
// reproduce the identical evaluation apart from EvaluationID and
// EvaluatedAt, which exist for audit correlation only.
type RequestEvaluation struct {
	EvaluationID string              `json:"evaluation_id"`
	UserID       string              `json:"user_id"`
	Permission   string              `json:"permission"`
	RuleKey      string              `json:"rule_key,omitempty"`
	Checks       []PrerequisiteCheck `json:"checks,omitempty"`
	Ratio        float64             `json:"satisfaction_ratio"`
	Score        int                 `json:"priority_score"`
	Decision     Decision            `json:"decision"`
	ReasonCode   string              `json:"reason_code"`
	Reasoning    string              `json:"reasoning,omitempty"`
	SnapshotHash string              `json:"snapshot_hash,omitempty"`
	TicketID     string              `json:"ticket_id,omitempty"`
	EvaluatedAt  time.Time           `json:"evaluated_at"`
}

// SatisfiedCount returns how many prerequisite checks passed.
func (e *RequestEvaluation) SatisfiedCount() int {
	n := 0
	for _, c := range e.Checks {
		if c.Satisfied {
			n++
		}
	}
	return n
}
