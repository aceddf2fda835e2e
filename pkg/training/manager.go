// Package training manages the persisted training configuration that gates
// whether interactive setup must run. The manager is a two-state machine:
// Untrained whenever no valid configuration matches the active rule-set
// snapshot, Trained once a complete answer set has been persisted for it.
// A rule-set change re-enters Untrained — stale configurations force
// re-training rather than a warning.
package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uam-labs/arbiter/pkg/contracts"
	"github.com/uam-labs/arbiter/pkg/criteria"
	"github.com/uam-labs/arbiter/pkg/tracker"
)

// Setup is the interactive collaborator that asks the operator the setup
// questions. Implementations live in the presentation layer; the core only
// consumes the answer set. Cancellation must surface ErrSetupCancelled.
type Setup interface {
	CollectAnswers(ctx context.Context, summary tracker.Summary, questions []contracts.Question) (*contracts.AnswerSet, error)
}

// Manager owns the training configuration lifecycle.
type Manager struct {
	store     Store
	setup     Setup
	guards    *criteria.Evaluator
	questions []contracts.Question
	clock     func() time.Time
	logger    *slog.Logger
}

// NewManager creates a manager with the default question catalog.
// setup may be nil for deployments that only ever load existing
// configurations; EnsureTrained then fails while Untrained.
func NewManager(store Store, setup Setup, guards *criteria.Evaluator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		setup:     setup,
		guards:    guards,
		questions: DefaultQuestions(),
		clock:     time.Now,
		logger:    logger,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Questions returns the catalog the setup collaborator should ask.
func (m *Manager) Questions() []contracts.Question {
	out := make([]contracts.Question, len(m.questions))
	copy(out, m.questions)
	return out
}

// IsTrained reports whether a valid configuration exists for the snapshot.
func (m *Manager) IsTrained(ctx context.Context, snapshotHash string) bool {
	_, err := m.Load(ctx, snapshotHash)
	return err == nil
}

// Load returns the persisted configuration for the snapshot, or
// ErrConfigNotFound. A record that fails schema validation is treated as
// absent rather than trusted.
func (m *Manager) Load(ctx context.Context, snapshotHash string) (*contracts.TrainingConfiguration, error) {
	data, err := m.store.Get(ctx, snapshotHash)
	if err != nil {
		return nil, err
	}
	if err := validateRecord(data); err != nil {
		m.logger.Warn("persisted training configuration failed validation; treating as untrained",
			"snapshot", snapshotHash, "error", err)
		return nil, contracts.ErrConfigNotFound
	}

	var cfg contracts.TrainingConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("training: decode configuration: %w", err)
	}
	if cfg.SnapshotHash != snapshotHash {
		return nil, contracts.ErrConfigNotFound
	}
	return &cfg, nil
}

// Save validates completeness and persists a configuration bound to the
// snapshot. A missing or empty required answer fails with
// IncompleteTraining and persists nothing, so a half-finished setup is
// never mistaken for a done one. Guard expressions must compile.
func (m *Manager) Save(ctx context.Context, snapshotHash string, ruleCount int, answers *contracts.AnswerSet) (*contracts.TrainingConfiguration, error) {
	if answers == nil {
		return nil, fmt.Errorf("%w: no answers supplied", contracts.ErrIncompleteTraining)
	}
	for _, q := range m.questions {
		if !q.Required {
			continue
		}
		if strings.TrimSpace(answers.Answers[q.ID]) == "" {
			return nil, fmt.Errorf("%w: question %q unanswered", contracts.ErrIncompleteTraining, q.ID)
		}
	}
	if m.guards != nil {
		for _, g := range answers.SpecialCaseGuards {
			if err := m.guards.Compile(g); err != nil {
				return nil, fmt.Errorf("%w: guard %q: %v", contracts.ErrIncompleteTraining, g, err)
			}
		}
	}

	cfg := &contracts.TrainingConfiguration{
		SnapshotHash: snapshotHash,
		Answers:      answers.Answers,
		Guards:       answers.SpecialCaseGuards,
		RuleCount:    ruleCount,
		TrainedAt:    m.clock().UTC(),
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("training: encode configuration: %w", err)
	}
	if err := m.store.Put(ctx, snapshotHash, data); err != nil {
		return nil, fmt.Errorf("training: persist configuration: %w", err)
	}

	m.logger.Info("training configuration saved",
		"snapshot", snapshotHash, "rules", ruleCount, "guards", len(cfg.Guards))
	return cfg, nil
}

// EnsureTrained returns the configuration for the summarized rule set,
// running the interactive setup collaborator first if none exists.
// Cancellation of the collaborator leaves the manager Untrained with no
// partial persistence.
func (m *Manager) EnsureTrained(ctx context.Context, summary tracker.Summary) (*contracts.TrainingConfiguration, error) {
	cfg, err := m.Load(ctx, summary.SnapshotHash)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, contracts.ErrConfigNotFound) {
		return nil, err
	}
	if m.setup == nil {
		return nil, contracts.ErrUntrained
	}

	m.logger.Info("no training configuration for active rule set; running interactive setup",
		"snapshot", summary.SnapshotHash, "rules", summary.RuleCount)

	answers, err := m.setup.CollectAnswers(ctx, summary, m.Questions())
	if err != nil {
		return nil, err
	}
	return m.Save(ctx, summary.SnapshotHash, summary.RuleCount, answers)
}
