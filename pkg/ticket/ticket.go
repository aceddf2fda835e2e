// Package ticket routes evaluations that need human review to a ticketing
// system. The sink surfaces TicketSystemUnavailable without retrying — the
// evaluation result is still valid when ticket creation fails, and retry
// policy belongs to the caller.
package ticket

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// Sink is the collaborator contract for ticket creation.
type Sink interface {
	// CreateTicket opens a review ticket for the evaluation and returns
	// its identifier. Failures wrap contracts.ErrTicketUnavailable.
	CreateTicket(ctx context.Context, eval *contracts.RequestEvaluation) (string, error)
}

// MemorySink collects tickets in process, for tests and dry runs.
type MemorySink struct {
	mu      sync.Mutex
	tickets []*contracts.RequestEvaluation
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// CreateTicket implements Sink.
func (s *MemorySink) CreateTicket(_ context.Context, eval *contracts.RequestEvaluation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, eval)
	return "TKT-" + uuid.New().String()[:8], nil
}

// Tickets returns the evaluations ticketed so far.
func (s *MemorySink) Tickets() []*contracts.RequestEvaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*contracts.RequestEvaluation, len(s.tickets))
	copy(out, s.tickets)
	return out
}
