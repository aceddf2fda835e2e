package contracts

import "time"

// Question is one operator-facing setup question. The interactive
// presentation layer decides how to render it; the core only validates
// that required questions received non-empty answers.
type Question struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // "text" | "textarea"
	Prompt   string `json:"prompt"`
	HelpText string `json:"help_text,omitempty"`
	Required bool   `json:"required"`
}

// AnswerSet holds the operator's answers to the setup questions plus any
// machine-checkable special-case guard expressions. Free-text answers are
// advisory and never influence decisions; guard expressions are compiled
// CEL and force human review when they match.
type AnswerSet struct {
	Answers           map[string]string `json:"answers"`
	SpecialCaseGuards []string          `json:"special_case_guards,omitempty"`
}

// TrainingConfiguration is the persisted record produced by a completed
// setup run. Its SnapshotHash binds it to the rule set it was trained
// against; a mismatch with the active snapshot means the configuration is
// stale and interactive setup must run again.
type TrainingConfiguration struct {
	SnapshotHash string            `json:"snapshot_hash"`
	Answers      map[string]string `json:"answers"`
	Guards       []string          `json:"special_case_guards,omitempty"`
	RuleCount    int               `json:"rule_count"`
	TrainedAt    time.Time         `json:"trained_at"`
}
