// Package engine orchestrates one access-request evaluation end to end:
// training gate, rule lookup, prerequisite evaluation, scoring, resolution,
// then side effects. It is the only package that performs side effects; the
// evaluation itself stays a pure function of the rule and the user context.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/uam-labs/arbiter/pkg/audit"
	"github.com/uam-labs/arbiter/pkg/contracts"
	"github.com/uam-labs/arbiter/pkg/criteria"
	"github.com/uam-labs/arbiter/pkg/evaluator"
	"github.com/uam-labs/arbiter/pkg/observability"
	"github.com/uam-labs/arbiter/pkg/resolver"
	"github.com/uam-labs/arbiter/pkg/scoring"
	"github.com/uam-labs/arbiter/pkg/ticket"
	"github.com/uam-labs/arbiter/pkg/tracker"
	"github.com/uam-labs/arbiter/pkg/training"
	"github.com/uam-labs/arbiter/pkg/usercontext"
)

// Deps are the injected collaborators. Catalog, Users, and Trainer are
// required; the rest may be nil and the corresponding behavior is skipped.
type Deps struct {
	Catalog   *tracker.Catalog
	Users     usercontext.Provider
	Trainer   *training.Manager
	Guards    *criteria.Evaluator
	Tickets   ticket.Sink
	Audit     *audit.Log
	Telemetry *observability.Provider
	Logger    *slog.Logger

	// DryRun evaluates and audits but never grants, tickets, or touches
	// user history.
	DryRun bool
}

// Engine evaluates access requests against the active rule set.
type Engine struct {
	catalog   *tracker.Catalog
	users     usercontext.Provider
	trainer   *training.Manager
	guards    *criteria.Evaluator
	tickets   ticket.Sink
	auditLog  *audit.Log
	telemetry *observability.Provider
	logger    *slog.Logger
	clock     func() time.Time
	dryRun    bool
}

// New creates an engine from its collaborators.
func New(d Deps) (*Engine, error) {
	if d.Catalog == nil || d.Users == nil || d.Trainer == nil {
		return nil, fmt.Errorf("engine: catalog, users, and trainer are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:   d.Catalog,
		users:     d.Users,
		trainer:   d.Trainer,
		guards:    d.Guards,
		tickets:   d.Tickets,
		auditLog:  d.Audit,
		telemetry: d.Telemetry,
		logger:    logger.With("component", "engine"),
		clock:     time.Now,
		dryRun:    d.DryRun,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// SyncRules ingests the tracker source, replaces the active rule set
// wholesale, and records the sync in the audit trail. On error the previous
// rule set stays active.
func (e *Engine) SyncRules(ctx context.Context, src tracker.Source) (*tracker.RuleSet, error) {
	rs, err := e.catalog.Sync(src)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "rule set synced",
		"snapshot", rs.SnapshotHash(), "rules", rs.Len())
	e.appendAudit(ctx, audit.EventRuleSync, "snapshot:"+rs.SnapshotHash(), map[string]any{
		"snapshot_hash": rs.SnapshotHash(),
		"rule_count":    rs.Len(),
	})
	return rs, nil
}

// Train ensures a training configuration exists for the active rule set,
// running the interactive setup collaborator when none does.
func (e *Engine) Train(ctx context.Context) (*contracts.TrainingConfiguration, error) {
	return e.ensureTrained(ctx, tracker.Summarize(e.catalog.Current()))
}

// ensureTrained loads the configuration for the snapshot. When the system
// is still untrained for it, setup runs and the completion is recorded in
// the audit trail; a configuration loaded from the store leaves no new
// entry.
func (e *Engine) ensureTrained(ctx context.Context, summary tracker.Summary) (*contracts.TrainingConfiguration, error) {
	if cfg, err := e.trainer.Load(ctx, summary.SnapshotHash); err == nil {
		return cfg, nil
	}

	cfg, err := e.trainer.EnsureTrained(ctx, summary)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "training completed",
		"snapshot", cfg.SnapshotHash, "rules", cfg.RuleCount, "guards", len(cfg.Guards))
	e.appendAudit(ctx, audit.EventTraining, "snapshot:"+cfg.SnapshotHash, cfg)
	return cfg, nil
}

// EvaluateRequest evaluates one access request and applies the decision's
// side effects. The returned evaluation is valid even when a side effect
// fails: ticket-system unavailability is reported through the error while
// the evaluation still carries the decision.
func (e *Engine) EvaluateRequest(ctx context.Context, userID, permission string) (*contracts.RequestEvaluation, error) {
	start := e.clock()
	if e.telemetry != nil {
		var span trace.Span
		ctx, span = e.telemetry.StartSpan(ctx, "engine.evaluate_request",
			attribute.String("user.id", userID),
			attribute.String("permission", permission),
		)
		defer span.End()
	}

	ruleSet := e.catalog.Current()

	// Training gate: an engine without a valid configuration for the
	// active snapshot must not evaluate. Setup runs here when a
	// collaborator is wired.
	cfg, err := e.ensureTrained(ctx, tracker.Summarize(ruleSet))
	if err != nil {
		return nil, err
	}

	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	eval := &contracts.RequestEvaluation{
		EvaluationID: uuid.New().String(),
		UserID:       userID,
		Permission:   permission,
		SnapshotHash: ruleSet.SnapshotHash(),
		EvaluatedAt:  start.UTC(),
	}

	rule, found := ruleSet.Lookup(permission)
	if !found {
		// No rule for the permission: never auto-grant something the
		// tracker does not describe, but do not fail the request either.
		eval.Score = scoring.Score(&contracts.PermissionRule{}, 0, nil)
		eval.Decision = contracts.DecisionTicket
		eval.ReasonCode = "UNKNOWN_PERMISSION"
		eval.Reasoning = fmt.Sprintf("no rule matches permission %q; manual review required", permission)
		return e.finish(ctx, eval, user, start)
	}
	eval.RuleKey = rule.Key()

	result := evaluator.Evaluate(rule, user)
	eval.Checks = result.Checks
	eval.Ratio = result.Ratio
	eval.Score = scoring.Score(rule, result.Ratio, user)

	guardMatched := false
	guardReason := ""
	if e.guards != nil && len(cfg.Guards) > 0 {
		guardMatched, guardReason = e.guards.Matches(cfg.Guards, user, rule, permission)
	}

	out := resolver.Resolve(resolver.Input{
		Score:                   eval.Score,
		Ratio:                   result.Ratio,
		AutoGrant:               rule.AutoGrant,
		ManagerApprovalPending:  result.ManagerApprovalPending(),
		SpecialCaseGuardMatched: guardMatched,
	})
	eval.Decision = out.Decision
	eval.ReasonCode = out.ReasonCode
	eval.Reasoning = out.Reasoning
	if guardMatched && out.ReasonCode == "SPECIAL_CASE" {
		eval.Reasoning = guardReason
	}

	return e.finish(ctx, eval, user, start)
}

// finish applies side effects for the resolved evaluation and records it.
// In dry-run mode the evaluation is audited and returned with no grant,
// ticket, or history mutation.
func (e *Engine) finish(ctx context.Context, eval *contracts.RequestEvaluation, user *contracts.UserContext, start time.Time) (*contracts.RequestEvaluation, error) {
	if e.dryRun {
		return e.record(ctx, eval, user, start, nil)
	}

	var sideEffectErr error

	switch eval.Decision {
	case contracts.DecisionGrant:
		if err := e.users.RecordGrant(ctx, user.UserID, eval.Permission); err != nil {
			sideEffectErr = fmt.Errorf("engine: record grant: %w", err)
			e.recordActionError(ctx, "record_grant")
		} else {
			e.appendAudit(ctx, audit.EventGrant, "user:"+user.UserID, eval)
		}

	case contracts.DecisionTicket:
		if e.tickets != nil {
			ticketID, err := e.tickets.CreateTicket(ctx, eval)
			if err != nil {
				// The evaluation stands; only the routing failed.
				sideEffectErr = err
				e.recordActionError(ctx, "create_ticket")
				e.logger.ErrorContext(ctx, "ticket creation failed",
					"evaluation", eval.EvaluationID, "error", err)
			} else {
				eval.TicketID = ticketID
				e.appendAudit(ctx, audit.EventTicket, "user:"+user.UserID, eval)
			}
		}
	}

	if err := e.users.AppendHistory(ctx, user.UserID, contracts.Outcome{
		Permission: eval.Permission,
		Decision:   eval.Decision,
		Timestamp:  eval.EvaluatedAt,
	}); err != nil {
		e.logger.WarnContext(ctx, "append history failed",
			"user", user.UserID, "error", err)
	}

	return e.record(ctx, eval, user, start, sideEffectErr)
}

// record appends the evaluation to the audit trail and emits telemetry.
func (e *Engine) record(ctx context.Context, eval *contracts.RequestEvaluation, user *contracts.UserContext, start time.Time, sideEffectErr error) (*contracts.RequestEvaluation, error) {
	e.appendAudit(ctx, audit.EventEvaluation, "user:"+user.UserID, eval)
	e.logger.InfoContext(ctx, "request evaluated",
		"evaluation", eval.EvaluationID,
		"user", eval.UserID,
		"permission", eval.Permission,
		"decision", eval.Decision,
		"score", eval.Score,
		"reason", eval.ReasonCode,
		"dry_run", e.dryRun)
	if e.telemetry != nil {
		e.telemetry.RecordEvaluation(ctx, string(eval.Decision), e.clock().Sub(start))
	}

	return eval, sideEffectErr
}

func (e *Engine) appendAudit(ctx context.Context, event audit.EventType, subject string, payload any) {
	if e.auditLog == nil {
		return
	}
	if _, err := e.auditLog.Append(event, subject, payload); err != nil {
		e.logger.WarnContext(ctx, "audit append failed", "event", event, "error", err)
	}
}

func (e *Engine) recordActionError(ctx context.Context, action string) {
	if e.telemetry != nil {
		e.telemetry.RecordActionError(ctx, action)
	}
}
