package contracts

import "time"

// UserContext is the read-only view of a user that evaluation consumes.
// It is owned by the user context provider; the core never mutates it in
// place — grants and history entries go back through the provider.
type UserContext struct {
	UserID             string    `json:"user_id"`
	Department         string    `json:"department,omitempty"`
	Role               string    `json:"role,omitempty"`
	ClearanceLevel     int       `json:"clearance_level"`
	CurrentPermissions []string  `json:"current_permissions,omitempty"`
	CompletedTrainings []string  `json:"completed_trainings,omitempty"`
	History            []Outcome `json:"history,omitempty"`
}

// Outcome is one past decision in a user's request history.
type Outcome struct {
	Permission string    `json:"permission"`
	Decision   Decision  `json:"decision"`
	Timestamp  time.Time `json:"timestamp"`
}

// HasPermission reports whether the user already holds the named permission.
func (u *UserContext) HasPermission(name string) bool {
	for _, p := range u.CurrentPermissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasPriorGrant reports whether the user's history contains at least one
// granted request. Established users earn a positive-history score bonus.
func (u *UserContext) HasPriorGrant() bool {
	for _, o := range u.History {
		if o.Decision == DecisionGrant {
			return true
		}
	}
	return false
}
