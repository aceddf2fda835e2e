// Package usercontext supplies stored user attributes and request history.
// The evaluation core only reads contexts; mutation (recording a grant,
// appending history) happens through explicit provider calls so scoring
// logic stays free of storage side effects.
package usercontext

import (
	"context"
	"sync"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// Provider is the collaborator contract the core depends on.
type Provider interface {
	// Get returns the user's context or ErrUnknownUser.
	Get(ctx context.Context, userID string) (*contracts.UserContext, error)

	// RecordGrant adds a permission to the user's current set.
	RecordGrant(ctx context.Context, userID, permission string) error

	// AppendHistory records a decision outcome in the user's history.
	AppendHistory(ctx context.Context, userID string, outcome contracts.Outcome) error
}

// MemoryProvider is an in-memory Provider for tests and single-process use.
type MemoryProvider struct {
	mu    sync.RWMutex
	users map[string]*contracts.UserContext
}

// NewMemoryProvider returns an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{users: make(map[string]*contracts.UserContext)}
}

// Put seeds or replaces a user context.
func (p *MemoryProvider) Put(user *contracts.UserContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[user.UserID] = user
}

// Get implements Provider. The returned context is a copy; callers never
// observe later mutations mid-evaluation.
func (p *MemoryProvider) Get(_ context.Context, userID string) (*contracts.UserContext, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.users[userID]
	if !ok {
		return nil, contracts.ErrUnknownUser
	}
	cp := *u
	cp.CurrentPermissions = append([]string(nil), u.CurrentPermissions...)
	cp.CompletedTrainings = append([]string(nil), u.CompletedTrainings...)
	cp.History = append([]contracts.Outcome(nil), u.History...)
	return &cp, nil
}

// RecordGrant implements Provider.
func (p *MemoryProvider) RecordGrant(_ context.Context, userID, permission string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return contracts.ErrUnknownUser
	}
	for _, perm := range u.CurrentPermissions {
		if perm == permission {
			return nil
		}
	}
	u.CurrentPermissions = append(u.CurrentPermissions, permission)
	return nil
}

// AppendHistory implements Provider.
func (p *MemoryProvider) AppendHistory(_ context.Context, userID string, outcome contracts.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return contracts.ErrUnknownUser
	}
	u.History = append(u.History, outcome)
	return nil
}
