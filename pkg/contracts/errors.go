package contracts

import "errors"

var (
	// ErrMalformedRuleSet is returned when the tabular source is missing
	// the identity columns (permission type, permission name). The sync
	// must be aborted and the previous rule set kept active.
	ErrMalformedRuleSet = errors.New("contracts: malformed rule set")

	// ErrIncompleteTraining is returned when a required setup answer is
	// missing or empty. Nothing is persisted; the system stays Untrained.
	ErrIncompleteTraining = errors.New("contracts: incomplete training answers")

	// ErrUnknownUser is returned when the user context provider has no
	// record for the requested user id.
	ErrUnknownUser = errors.New("contracts: unknown user")

	// ErrTicketUnavailable signals that the evaluation itself succeeded but
	// the downstream ticket creation failed. The caller owns the retry.
	ErrTicketUnavailable = errors.New("contracts: ticket system unavailable")

	// ErrConfigNotFound is returned when no training configuration is
	// persisted for a rule-set snapshot.
	ErrConfigNotFound = errors.New("contracts: training configuration not found")

	// ErrUntrained is returned when evaluation is attempted before a
	// training configuration matching the active snapshot exists.
	ErrUntrained = errors.New("contracts: system not trained for active rule set")

	// ErrSetupCancelled is returned when the interactive setup collaborator
	// was cancelled before supplying a complete answer set.
	ErrSetupCancelled = errors.New("contracts: interactive setup cancelled")
)
