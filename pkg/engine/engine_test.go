package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uam-labs/arbiter/pkg/audit"
	"github.com/uam-labs/arbiter/pkg/contracts"
	"github.com/uam-labs/arbiter/pkg/criteria"
	"github.com/uam-labs/arbiter/pkg/engine"
	"github.com/uam-labs/arbiter/pkg/ticket"
	"github.com/uam-labs/arbiter/pkg/tracker"
	"github.com/uam-labs/arbiter/pkg/training"
	"github.com/uam-labs/arbiter/pkg/usercontext"
)

type rowSource []tracker.Row

func (s rowSource) Rows() ([]tracker.Row, error) { return s, nil }

type autoSetup struct{ guards []string }

func (s *autoSetup) CollectAnswers(_ context.Context, _ tracker.Summary, questions []contracts.Question) (*contracts.AnswerSet, error) {
	a := &contracts.AnswerSet{
		Answers:           map[string]string{},
		SpecialCaseGuards: s.guards,
	}
	for _, q := range questions {
		if q.Required {
			a.Answers[q.ID] = "per the documented process"
		}
	}
	return a, nil
}

type harness struct {
	engine *engine.Engine
	users  *usercontext.MemoryProvider
	sink   *ticket.MemorySink
	audit  *audit.Log
}

func newHarness(t *testing.T, rows []tracker.Row, guards []string) *harness {
	t.Helper()

	guardEval, err := criteria.NewEvaluator()
	require.NoError(t, err)

	h := &harness{
		users: usercontext.NewMemoryProvider(),
		sink:  ticket.NewMemorySink(),
		audit: audit.NewLog(),
	}
	trainer := training.NewManager(training.NewMemoryStore(), &autoSetup{guards: guards}, guardEval, nil)

	catalog := tracker.NewCatalog()
	eng, err := engine.New(engine.Deps{
		Catalog: catalog,
		Users:   h.users,
		Trainer: trainer,
		Guards:  guardEval,
		Tickets: h.sink,
		Audit:   h.audit,
	})
	require.NoError(t, err)
	h.engine = eng

	_, err = eng.SyncRules(context.Background(), rowSource(rows))
	require.NoError(t, err)
	return h
}

func securityRuleRows() []tracker.Row {
	return []tracker.Row{{
		"permission_type": "Database Access",
		"permission_name": "prod-db-read",
		"pre_requisites":  "Department, Training: Security101",
		"priority_level":  "high",
		"auto_grant":      "yes",
	}}
}

// Scenario: fully qualified user on a high-priority auto-grant rule.
// Satisfaction 1.0, raw score 50+30+14+10+10 clamps to 100, decision GRANT.
func TestEvaluateRequest_FullyQualifiedUserGranted(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)
	h.users.Put(&contracts.UserContext{
		UserID:             "alice",
		Department:         "Engineering",
		ClearanceLevel:     3,
		CompletedTrainings: []string{"Security101"},
		History: []contracts.Outcome{
			{Permission: "vpn", Decision: contracts.DecisionGrant},
		},
	})

	eval, err := h.engine.EvaluateRequest(context.Background(), "alice", "prod-db-read")
	require.NoError(t, err)

	assert.Equal(t, 1.0, eval.Ratio)
	assert.Equal(t, 100, eval.Score)
	assert.Equal(t, contracts.DecisionGrant, eval.Decision)
	assert.Equal(t, "AUTO_GRANT", eval.ReasonCode)
	assert.Empty(t, eval.TicketID)

	// The grant is recorded on the user.
	u, err := h.users.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, u.HasPermission("prod-db-read"))
	require.Len(t, u.History, 2)
	assert.Equal(t, "prod-db-read", u.History[1].Permission)
}

// Scenario: same rule, user missing the training. Ratio 0.5 keeps the
// score at 89 but fails the grant band's ratio gate: ticket.
func TestEvaluateRequest_RatioGateForcesTicket(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)
	h.users.Put(&contracts.UserContext{
		UserID:     "bob",
		Department: "Engineering",
	})

	eval, err := h.engine.EvaluateRequest(context.Background(), "bob", "prod-db-read")
	require.NoError(t, err)

	assert.Equal(t, 0.5, eval.Ratio)
	assert.Equal(t, 89, eval.Score)
	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Equal(t, "REVIEW_REQUIRED", eval.ReasonCode)
	assert.NotEmpty(t, eval.TicketID)
	assert.Len(t, h.sink.Tickets(), 1)
}

// Scenario: an unsatisfied manager-approval prerequisite forces a ticket
// regardless of how high the score is.
func TestEvaluateRequest_ManagerApprovalOverride(t *testing.T) {
	rows := []tracker.Row{{
		"permission_type": "Database Access",
		"permission_name": "prod-db-write",
		"pre_requisites":  "Department, Manager Approval",
		"priority_level":  "critical",
		"auto_grant":      "yes",
	}}
	h := newHarness(t, rows, nil)
	h.users.Put(&contracts.UserContext{
		UserID:     "carol",
		Department: "Engineering",
		History: []contracts.Outcome{
			{Permission: "vpn", Decision: contracts.DecisionGrant},
		},
	})

	eval, err := h.engine.EvaluateRequest(context.Background(), "carol", "prod-db-write")
	require.NoError(t, err)

	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Equal(t, "MANAGER_APPROVAL_REQUIRED", eval.ReasonCode)
}

// Scenario: zero prerequisites, priority low, auto-grant disabled. Ratio
// 1.0 and score 80 reach the grant band thresholds, but the auto-grant
// gate fails: ticket.
func TestEvaluateRequest_AutoGrantGateForcesTicket(t *testing.T) {
	rows := []tracker.Row{{
		"permission_type": "Application Access",
		"permission_name": "wiki",
		"priority_level":  "low",
	}}
	h := newHarness(t, rows, nil)
	h.users.Put(&contracts.UserContext{UserID: "dave"})

	eval, err := h.engine.EvaluateRequest(context.Background(), "dave", "wiki")
	require.NoError(t, err)

	assert.Equal(t, 1.0, eval.Ratio)
	assert.Equal(t, 80, eval.Score)
	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Equal(t, "REVIEW_REQUIRED", eval.ReasonCode)
}

func TestEvaluateRequest_UnknownPermissionTicketsAtBase(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)
	h.users.Put(&contracts.UserContext{UserID: "alice"})

	eval, err := h.engine.EvaluateRequest(context.Background(), "alice", "mainframe-root")
	require.NoError(t, err)

	assert.Equal(t, 50, eval.Score)
	assert.Empty(t, eval.RuleKey)
	assert.Empty(t, eval.Checks)
	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Equal(t, "UNKNOWN_PERMISSION", eval.ReasonCode)
	assert.NotEmpty(t, eval.TicketID)
}

func TestEvaluateRequest_UnknownUser(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)

	_, err := h.engine.EvaluateRequest(context.Background(), "nobody", "prod-db-read")
	assert.ErrorIs(t, err, contracts.ErrUnknownUser)
}

func TestEvaluateRequest_GuardForcesSpecialCase(t *testing.T) {
	h := newHarness(t, securityRuleRows(), []string{`user.department == "Finance"`})
	h.users.Put(&contracts.UserContext{
		UserID:             "eve",
		Department:         "Finance",
		CompletedTrainings: []string{"Security101"},
		History: []contracts.Outcome{
			{Permission: "vpn", Decision: contracts.DecisionGrant},
		},
	})

	eval, err := h.engine.EvaluateRequest(context.Background(), "eve", "prod-db-read")
	require.NoError(t, err)

	// Would have auto-granted at score 100; the operator guard routes
	// it to review instead.
	assert.Equal(t, 100, eval.Score)
	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Equal(t, "SPECIAL_CASE", eval.ReasonCode)
}

type failingSink struct{}

func (failingSink) CreateTicket(context.Context, *contracts.RequestEvaluation) (string, error) {
	return "", fmt.Errorf("%w: endpoint returned 502", contracts.ErrTicketUnavailable)
}

func TestEvaluateRequest_TicketFailureKeepsDecision(t *testing.T) {
	guardEval, err := criteria.NewEvaluator()
	require.NoError(t, err)
	users := usercontext.NewMemoryProvider()
	users.Put(&contracts.UserContext{UserID: "bob", Department: "Engineering"})
	trainer := training.NewManager(training.NewMemoryStore(), &autoSetup{}, guardEval, nil)

	catalog := tracker.NewCatalog()
	eng, err := engine.New(engine.Deps{
		Catalog: catalog,
		Users:   users,
		Trainer: trainer,
		Guards:  guardEval,
		Tickets: failingSink{},
	})
	require.NoError(t, err)
	_, err = eng.SyncRules(context.Background(), rowSource(securityRuleRows()))
	require.NoError(t, err)

	eval, err := eng.EvaluateRequest(context.Background(), "bob", "prod-db-read")

	// The decision is valid and returned; only the side effect failed.
	require.NotNil(t, eval)
	assert.Equal(t, contracts.DecisionTicket, eval.Decision)
	assert.Empty(t, eval.TicketID)
	assert.ErrorIs(t, err, contracts.ErrTicketUnavailable)
}

func TestEvaluateRequest_DryRunSkipsSideEffects(t *testing.T) {
	guardEval, err := criteria.NewEvaluator()
	require.NoError(t, err)
	users := usercontext.NewMemoryProvider()
	users.Put(&contracts.UserContext{
		UserID:             "alice",
		Department:         "Engineering",
		CompletedTrainings: []string{"Security101"},
		History: []contracts.Outcome{
			{Permission: "vpn", Decision: contracts.DecisionGrant},
		},
	})
	sink := ticket.NewMemorySink()
	auditLog := audit.NewLog()
	trainer := training.NewManager(training.NewMemoryStore(), &autoSetup{}, guardEval, nil)

	eng, err := engine.New(engine.Deps{
		Catalog: tracker.NewCatalog(),
		Users:   users,
		Trainer: trainer,
		Guards:  guardEval,
		Tickets: sink,
		Audit:   auditLog,
		DryRun:  true,
	})
	require.NoError(t, err)
	_, err = eng.SyncRules(context.Background(), rowSource(securityRuleRows()))
	require.NoError(t, err)

	eval, err := eng.EvaluateRequest(context.Background(), "alice", "prod-db-read")
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionGrant, eval.Decision)

	// The decision is computed and audited, but nothing was granted,
	// ticketed, or appended to history.
	u, err := users.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, u.HasPermission("prod-db-read"))
	assert.Len(t, u.History, 1)
	assert.Empty(t, sink.Tickets())
	assert.Len(t, auditLog.Query(audit.Filter{Event: audit.EventEvaluation}), 1)
	assert.Empty(t, auditLog.Query(audit.Filter{Event: audit.EventGrant}))
}

func TestEvaluateRequest_UntrainedWithoutSetup(t *testing.T) {
	guardEval, err := criteria.NewEvaluator()
	require.NoError(t, err)
	users := usercontext.NewMemoryProvider()
	users.Put(&contracts.UserContext{UserID: "alice"})
	trainer := training.NewManager(training.NewMemoryStore(), nil, guardEval, nil)

	catalog := tracker.NewCatalog()
	eng, err := engine.New(engine.Deps{Catalog: catalog, Users: users, Trainer: trainer})
	require.NoError(t, err)
	_, err = eng.SyncRules(context.Background(), rowSource(securityRuleRows()))
	require.NoError(t, err)

	_, err = eng.EvaluateRequest(context.Background(), "alice", "prod-db-read")
	assert.ErrorIs(t, err, contracts.ErrUntrained)
}

func TestEvaluateRequest_AuditTrail(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)
	h.users.Put(&contracts.UserContext{
		UserID:             "alice",
		Department:         "Engineering",
		CompletedTrainings: []string{"Security101"},
		History: []contracts.Outcome{
			{Permission: "vpn", Decision: contracts.DecisionGrant},
		},
	})

	_, err := h.engine.EvaluateRequest(context.Background(), "alice", "prod-db-read")
	require.NoError(t, err)

	require.NoError(t, h.audit.VerifyChain())
	assert.Len(t, h.audit.Query(audit.Filter{Event: audit.EventRuleSync}), 1)
	assert.Len(t, h.audit.Query(audit.Filter{Event: audit.EventTraining}), 1)
	assert.Len(t, h.audit.Query(audit.Filter{Event: audit.EventGrant}), 1)
	assert.Len(t, h.audit.Query(audit.Filter{Event: audit.EventEvaluation}), 1)
}

func TestTrain_AuditsCompletionOnce(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)

	_, err := h.engine.Train(context.Background())
	require.NoError(t, err)

	// Already trained for the snapshot: loads, no second entry.
	_, err = h.engine.Train(context.Background())
	require.NoError(t, err)

	entries := h.audit.Query(audit.Filter{Event: audit.EventTraining})
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Subject, "snapshot:sha256:")
	require.NoError(t, h.audit.VerifyChain())
}

func TestEvaluateRequest_Deterministic(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)
	h.users.Put(&contracts.UserContext{UserID: "bob", Department: "Engineering"})
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	h.engine.WithClock(clock)

	first, err := h.engine.EvaluateRequest(context.Background(), "bob", "prod-db-read")
	require.NoError(t, err)
	second, err := h.engine.EvaluateRequest(context.Background(), "bob", "prod-db-read")
	require.NoError(t, err)

	// Identical inputs reproduce the identical evaluation apart from
	// the correlation identifiers.
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Ratio, second.Ratio)
	assert.Equal(t, first.Decision, second.Decision)
	assert.Equal(t, first.ReasonCode, second.ReasonCode)
	assert.NotEqual(t, first.EvaluationID, second.EvaluationID)
}

func TestSyncRules_MalformedSourceKeepsOldSet(t *testing.T) {
	h := newHarness(t, securityRuleRows(), nil)

	_, err := h.engine.SyncRules(context.Background(), rowSource([]tracker.Row{
		{"priority_level": "high"},
	}))
	assert.ErrorIs(t, err, contracts.ErrMalformedRuleSet)

	h.users.Put(&contracts.UserContext{UserID: "bob", Department: "Engineering"})
	eval, err := h.engine.EvaluateRequest(context.Background(), "bob", "prod-db-read")
	require.NoError(t, err)
	assert.Equal(t, "Database Access/prod-db-read", eval.RuleKey)
}
