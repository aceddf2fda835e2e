package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uam-labs/arbiter/pkg/contracts"
)

type stubSource struct {
	rows []Row
	err  error
}

func (s *stubSource) Rows() ([]Row, error) { return s.rows, s.err }

func goodRows() []Row {
	return []Row{
		{"permission_type": "database", "permission_name": "prod-read", "priority_level": "high"},
		{"permission_type": "saas", "permission_name": "CRM Admin", "auto_grant": "yes"},
	}
}

func TestCatalog_SyncReplacesWholesale(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, 0, c.Current().Len())

	rs, err := c.Sync(&stubSource{rows: goodRows()})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, rs.SnapshotHash(), c.Current().SnapshotHash())
}

func TestCatalog_FailedSyncKeepsPreviousSet(t *testing.T) {
	c := NewCatalog()
	_, err := c.Sync(&stubSource{rows: goodRows()})
	require.NoError(t, err)
	before := c.Current().SnapshotHash()

	_, err = c.Sync(&stubSource{err: errors.New("source offline")})
	require.Error(t, err)
	assert.Equal(t, before, c.Current().SnapshotHash())

	_, err = c.Sync(&stubSource{rows: []Row{{"priority_level": "high"}}})
	assert.ErrorIs(t, err, contracts.ErrMalformedRuleSet)
	assert.Equal(t, before, c.Current().SnapshotHash())
}

func TestLookup_ExactBeatsSubstring(t *testing.T) {
	rs, err := Normalize(goodRows())
	require.NoError(t, err)

	rule, ok := rs.Lookup("crm admin")
	require.True(t, ok)
	assert.Equal(t, "CRM Admin", rule.Name)

	rule, ok = rs.Lookup("prod")
	require.True(t, ok)
	assert.Equal(t, "prod-read", rule.Name)

	_, ok = rs.Lookup("nonexistent-thing")
	assert.False(t, ok)

	_, ok = rs.Lookup("  ")
	assert.False(t, ok)
}

func TestLookup_DuplicateIdentityLastWins(t *testing.T) {
	rows := []Row{
		{"permission_type": "database", "permission_name": "prod-read", "auto_grant": "no"},
		{"permission_type": "database", "permission_name": "prod-read", "auto_grant": "yes"},
	}
	rs, err := Normalize(rows)
	require.NoError(t, err)

	rule, ok := rs.Lookup("prod-read")
	require.True(t, ok)
	assert.True(t, rule.AutoGrant)
}

func TestSummarize(t *testing.T) {
	rows := []Row{
		{"permission_type": "database", "permission_name": "prod-read",
			"pre_requisites": "Manager Approval", "priority_level": "high"},
		{"permission_type": "database", "permission_name": "staging-read",
			"priority_level": "low", "auto_grant": "yes"},
		{"permission_type": "saas", "permission_name": "crm-admin"},
	}
	rs, err := Normalize(rows)
	require.NoError(t, err)

	s := Summarize(rs)
	assert.Equal(t, 3, s.RuleCount)
	assert.Equal(t, 2, s.PermissionTypes["database"])
	assert.Equal(t, 1, s.PermissionTypes["saas"])
	assert.Equal(t, 1, s.AutoGrantEnabled)
	assert.Equal(t, 1, s.PrerequisiteCounts["Manager Approval"])
	assert.Equal(t, 1, s.PriorityDistribution["high"])
	assert.Equal(t, 1, s.PriorityDistribution["low"])
	// Absent priority cell defaults to medium.
	assert.Equal(t, 1, s.PriorityDistribution["medium"])
	assert.Equal(t, rs.SnapshotHash(), s.SnapshotHash)
}
