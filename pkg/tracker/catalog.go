package tracker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

// RuleSet is an immutable, snapshot-hashed collection of permission rules.
type RuleSet struct {
	rules  []contracts.PermissionRule
	byKey  map[string]int
	byName map[string]int
	hash   string
}

func newRuleSet(rules []contracts.PermissionRule) (*RuleSet, error) {
	hash, err := snapshotHash(rules)
	if err != nil {
		return nil, fmt.Errorf("tracker: snapshot hash failed: %w", err)
	}

	rs := &RuleSet{
		rules:  rules,
		byKey:  make(map[string]int, len(rules)),
		byName: make(map[string]int, len(rules)),
		hash:   hash,
	}
	for i := range rules {
		// Duplicate identities: last row wins, matching full-replace
		// semantics where later rows shadow earlier ones.
		rs.byKey[rules[i].Key()] = i
		rs.byName[strings.ToLower(rules[i].Name)] = i
	}
	return rs, nil
}

// SnapshotHash returns the content-addressed hash of the rule set, used to
// bind training configurations to the rules they were trained against.
func (rs *RuleSet) SnapshotHash() string { return rs.hash }

// Len returns the number of rules.
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rules returns a copy of the rule slice.
func (rs *RuleSet) Rules() []contracts.PermissionRule {
	out := make([]contracts.PermissionRule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Lookup finds the rule for a requested permission name. Exact
// case-insensitive match wins; otherwise the first rule whose name
// contains the requested name (or vice versa) is returned, tolerating the
// naming variance between request forms and the tracker.
func (rs *RuleSet) Lookup(permission string) (*contracts.PermissionRule, bool) {
	low := strings.ToLower(strings.TrimSpace(permission))
	if low == "" {
		return nil, false
	}
	if i, ok := rs.byName[low]; ok {
		r := rs.rules[i]
		return &r, true
	}
	for i := range rs.rules {
		name := strings.ToLower(rs.rules[i].Name)
		if strings.Contains(name, low) || strings.Contains(low, name) {
			r := rs.rules[i]
			return &r, true
		}
	}
	return nil, false
}

// Catalog holds the active rule set and swaps it atomically on sync.
// Readers mid-evaluation see either the old or the new set entirely.
type Catalog struct {
	mu      sync.RWMutex
	current *RuleSet
}

// NewCatalog returns a catalog with an empty active rule set.
func NewCatalog() *Catalog {
	empty, _ := newRuleSet(nil)
	return &Catalog{current: empty}
}

// Current returns the active rule set.
func (c *Catalog) Current() *RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Sync ingests the source and replaces the active rule set wholesale.
// On any error the previous rule set stays active.
func (c *Catalog) Sync(src Source) (*RuleSet, error) {
	rows, err := src.Rows()
	if err != nil {
		return nil, fmt.Errorf("tracker: read source: %w", err)
	}
	rs, err := Normalize(rows)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.current = rs
	c.mu.Unlock()
	return rs, nil
}

// Replace installs an already-normalized rule set as the active one.
func (c *Catalog) Replace(rs *RuleSet) {
	c.mu.Lock()
	c.current = rs
	c.mu.Unlock()
}
