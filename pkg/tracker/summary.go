package tracker

// Summary is the structural analysis of a rule set handed to the
// interactive setup collaborator so the operator sees what they are
// training against.
type Summary struct {
	SnapshotHash         string         `json:"snapshot_hash"`
	RuleCount            int            `json:"rule_count"`
	PermissionTypes      map[string]int `json:"permission_types"`
	PrerequisiteCounts   map[string]int `json:"prerequisite_counts"`
	AutoGrantEnabled     int            `json:"auto_grant_enabled"`
	PriorityDistribution map[string]int `json:"priority_distribution"`
}

// Summarize computes the analysis for a rule set.
func Summarize(rs *RuleSet) Summary {
	s := Summary{
		SnapshotHash:         rs.SnapshotHash(),
		RuleCount:            rs.Len(),
		PermissionTypes:      map[string]int{},
		PrerequisiteCounts:   map[string]int{},
		PriorityDistribution: map[string]int{},
	}
	for _, r := range rs.Rules() {
		s.PermissionTypes[r.Type]++
		s.PriorityDistribution[r.Priority.String()]++
		if r.AutoGrant {
			s.AutoGrantEnabled++
		}
		for _, p := range r.Prerequisites {
			s.PrerequisiteCounts[p.Raw]++
		}
	}
	return s
}
