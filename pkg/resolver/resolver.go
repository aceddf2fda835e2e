// Package resolver maps an evaluation's score, satisfaction ratio, and
// auto-grant eligibility to a terminal decision. It is a stateless pure
// function with a fixed band table; the only precedence rule is that an
// unsatisfied manager-approval prerequisite forces a ticket regardless of
// score.
package resolver

import (
	"fmt"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

const (
	// GrantScoreFloor is the minimum score for the auto-grant band.
	GrantScoreFloor = 80
	// GrantRatioFloor is the minimum satisfaction ratio for the auto-grant band.
	GrantRatioFloor = 0.80
	// TicketScoreFloor is the minimum score for the ticket band.
	TicketScoreFloor = 50
)

// Input is the full decision input tuple. Identical tuples always yield
// identical outputs.
type Input struct {
	Score                   int
	Ratio                   float64
	AutoGrant               bool
	ManagerApprovalPending  bool
	SpecialCaseGuardMatched bool
}

// Output is the resolved decision with its reason code and explanation.
type Output struct {
	Decision   contracts.Decision
	ReasonCode string
	Reasoning  string
}

// Resolve applies the decision bands:
//
//	manager approval pending        -> CREATE_TICKET (unconditional)
//	special-case guard matched      -> CREATE_TICKET (operator-flagged review)
//	score >= 80, ratio >= 0.80, AG  -> GRANT
//	score >= 50                     -> CREATE_TICKET
//	otherwise                       -> REJECT (needs human review, low priority)
func Resolve(in Input) Output {
	if in.ManagerApprovalPending {
		return Output{
			Decision:   contracts.DecisionTicket,
			ReasonCode: "MANAGER_APPROVAL_REQUIRED",
			Reasoning:  "manager approval cannot be auto-verified; routing to human approval",
		}
	}
	if in.SpecialCaseGuardMatched {
		return Output{
			Decision:   contracts.DecisionTicket,
			ReasonCode: "SPECIAL_CASE",
			Reasoning:  "request matches an operator-defined special case; routing to human review",
		}
	}
	if in.Score >= GrantScoreFloor && in.Ratio >= GrantRatioFloor && in.AutoGrant {
		return Output{
			Decision:   contracts.DecisionGrant,
			ReasonCode: "AUTO_GRANT",
			Reasoning: fmt.Sprintf("score %d and satisfaction %.0f%% meet the auto-grant bands for an auto-grant eligible rule",
				in.Score, in.Ratio*100),
		}
	}
	if in.Score >= TicketScoreFloor {
		return Output{
			Decision:   contracts.DecisionTicket,
			ReasonCode: "REVIEW_REQUIRED",
			Reasoning: fmt.Sprintf("score %d requires review (satisfaction %.0f%%, auto-grant=%t)",
				in.Score, in.Ratio*100, in.AutoGrant),
		}
	}
	return Output{
		Decision:   contracts.DecisionReject,
		ReasonCode: "PENDING_REVIEW",
		Reasoning:  fmt.Sprintf("score %d below the review floor; held as low-priority pending review", in.Score),
	}
}
