package training

import "github.com/uam-labs/arbiter/pkg/contracts"

// Question IDs referenced by consumers of the answer set.
const (
	QuestionForms             = "forms_identification"
	QuestionValidationRules   = "validation_rules"
	QuestionApprovalCriteria  = "auto_approval_criteria"
	QuestionRejectionCriteria = "rejection_criteria"
	QuestionSpecialCases      = "special_cases"
)

// DefaultQuestions returns the standard setup catalog. All answers are
// free text; only the special-case guards (collected separately on the
// answer set) are machine-checked.
func DefaultQuestions() []contracts.Question {
	return []contracts.Question{
		{
			ID:       QuestionForms,
			Type:     "text",
			Prompt:   "What forms or documents are typically required for these access requests?",
			HelpText: "List the forms users must submit, e.g. 'Access Request Form, Manager Approval Form'.",
			Required: true,
		},
		{
			ID:       QuestionValidationRules,
			Type:     "textarea",
			Prompt:   "What are the key validation rules to follow?",
			HelpText: "Business rules that should guide accept/reject decisions.",
			Required: true,
		},
		{
			ID:       QuestionApprovalCriteria,
			Type:     "textarea",
			Prompt:   "When should requests be automatically approved?",
			HelpText: "Clear criteria for automatic approval.",
			Required: true,
		},
		{
			ID:       QuestionRejectionCriteria,
			Type:     "textarea",
			Prompt:   "When should requests be automatically rejected?",
			HelpText: "Clear criteria for automatic rejection.",
			Required: true,
		},
		{
			ID:       QuestionSpecialCases,
			Type:     "textarea",
			Prompt:   "Are there any special cases or exceptions to be aware of?",
			HelpText: "Edge cases or special handling rules. Optional.",
			Required: false,
		},
	}
}
