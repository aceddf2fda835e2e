// Package tracker ingests the master tracker — the tabular source of
// permission rules — and normalizes its loosely structured rows into typed
// PermissionRule values. A sync is a full-replace transaction: the catalog
// swaps in the complete new rule set or keeps the old one, never a mix.
package tracker

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/uam-labs/arbiter/pkg/canonical"
	"github.com/uam-labs/arbiter/pkg/contracts"
)

// Row is one string-keyed record from a tabular source.
type Row map[string]string

// Source produces the row records of a master tracker.
type Source interface {
	Rows() ([]Row, error)
}

type field string

const (
	fieldType      field = "permission_type"
	fieldName      field = "permission_name"
	fieldPrereqs   field = "pre_requisites"
	fieldCriteria  field = "criteria"
	fieldPriority  field = "priority_level"
	fieldAutoGrant field = "auto_grant"
)

// fieldAliases maps each logical field to the header variants accepted in
// the wild. Matching is case-folded and whitespace/hyphen tolerant.
var fieldAliases = map[field][]string{
	fieldType:      {"permission_type", "type"},
	fieldName:      {"permission_name", "name", "permission"},
	fieldPrereqs:   {"pre_requisites", "prerequisites", "pre_requisite"},
	fieldCriteria:  {"criteria", "granting_criteria"},
	fieldPriority:  {"priority_level", "priority"},
	fieldAutoGrant: {"auto_grant", "auto_grant_enabled"},
}

var folder = cases.Fold()

// normalizeHeader reduces a raw column header to its canonical alias form.
func normalizeHeader(h string) string {
	h = folder.String(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// resolveColumns maps logical fields to the actual header present in the
// row set. Resolution happens once per sync.
func resolveColumns(rows []Row) map[field]string {
	seen := map[string]string{} // normalized header -> actual header
	for _, r := range rows {
		for h := range r {
			seen[normalizeHeader(h)] = h
		}
	}

	resolved := make(map[field]string, len(fieldAliases))
	for f, aliases := range fieldAliases {
		for _, a := range aliases {
			if actual, ok := seen[a]; ok {
				resolved[f] = actual
				break
			}
		}
	}
	return resolved
}

// Normalize converts raw tracker rows into an immutable rule set.
// It fails with ErrMalformedRuleSet only when the identity columns
// (permission type and name) cannot be resolved at all; rows with missing
// optional fields fall back to documented defaults, and rows missing their
// own identity values are skipped rather than failing the sync.
func Normalize(rows []Row) (*RuleSet, error) {
	if len(rows) == 0 {
		return newRuleSet(nil)
	}

	cols := resolveColumns(rows)
	if _, ok := cols[fieldType]; !ok {
		return nil, fmt.Errorf("%w: no permission type column", contracts.ErrMalformedRuleSet)
	}
	if _, ok := cols[fieldName]; !ok {
		return nil, fmt.Errorf("%w: no permission name column", contracts.ErrMalformedRuleSet)
	}

	rules := make([]contracts.PermissionRule, 0, len(rows))
	for _, row := range rows {
		permType := strings.TrimSpace(row[cols[fieldType]])
		permName := strings.TrimSpace(row[cols[fieldName]])
		if permType == "" || permName == "" {
			continue
		}

		rule := contracts.PermissionRule{
			Type:          permType,
			Name:          permName,
			Prerequisites: parsePrerequisiteCell(cellValue(row, cols, fieldPrereqs)),
			Criteria:      strings.TrimSpace(cellValue(row, cols, fieldCriteria)),
			Priority:      contracts.ParsePriority(cellValue(row, cols, fieldPriority)),
			AutoGrant:     parseTruthy(cellValue(row, cols, fieldAutoGrant)),
		}
		rules = append(rules, rule)
	}

	return newRuleSet(rules)
}

func cellValue(row Row, cols map[field]string, f field) string {
	actual, ok := cols[f]
	if !ok {
		return ""
	}
	return row[actual]
}

// parsePrerequisiteCell accepts a JSON array literal or a comma-separated
// string. A value starting with '[' that fails JSON decoding is kept as a
// single prerequisite token rather than discarded.
func parsePrerequisiteCell(cell string) []contracts.Prerequisite {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return nil
	}

	var tokens []string
	if strings.HasPrefix(cell, "[") {
		if err := json.Unmarshal([]byte(cell), &tokens); err != nil {
			tokens = []string{cell}
		}
	} else {
		for _, t := range strings.Split(cell, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tokens = append(tokens, t)
			}
		}
	}

	prereqs := make([]contracts.Prerequisite, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		prereqs = append(prereqs, classifyPrerequisite(t))
	}
	return prereqs
}

// classifyPrerequisite turns a raw prerequisite string into a typed
// descriptor by keyword matching. Classification order follows the
// precedence of the keyword table: department before approval, so
// "Department Approval" classifies as a department requirement.
func classifyPrerequisite(raw string) contracts.Prerequisite {
	low := folder.String(raw)

	switch {
	case strings.Contains(low, "department"):
		return contracts.Prerequisite{Kind: contracts.PrereqDepartment, Raw: raw}
	case strings.Contains(low, "training"):
		return contracts.Prerequisite{
			Kind: contracts.PrereqTraining,
			Name: extractRemainder(raw, "training"),
			Raw:  raw,
		}
	case strings.Contains(low, "clearance"):
		return contracts.Prerequisite{
			Kind:  contracts.PrereqClearanceLevel,
			Level: extractLevel(low),
			Raw:   raw,
		}
	case strings.Contains(low, "manager"), strings.Contains(low, "approval"):
		return contracts.Prerequisite{Kind: contracts.PrereqManagerApproval, Raw: raw}
	case strings.Contains(low, "role"):
		return contracts.Prerequisite{
			Kind: contracts.PrereqRole,
			Name: extractRemainder(raw, "role"),
			Raw:  raw,
		}
	default:
		return contracts.Prerequisite{Kind: contracts.PrereqGeneric, Name: raw, Raw: raw}
	}
}

// extractRemainder strips the keyword from the raw text and returns what is
// left as the descriptor name, e.g. "Training: Security101" -> "Security101".
// The keyword is located by scanning the raw string itself; an offset from
// the folded string cannot index raw because folding changes byte length.
func extractRemainder(raw, keyword string) string {
	for i := range raw {
		end := i + len(keyword)
		if end > len(raw) {
			break
		}
		if strings.EqualFold(raw[i:end], keyword) {
			return strings.Trim(raw[:i]+raw[end:], " \t:-_")
		}
	}
	return ""
}

// extractLevel pulls the first embedded integer out of a clearance
// prerequisite. Level 2 is the documented default when no number appears.
func extractLevel(low string) int {
	num := ""
	for _, r := range low {
		if r >= '0' && r <= '9' {
			num += string(r)
		} else if num != "" {
			break
		}
	}
	if num == "" {
		return 2
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return 2
	}
	return n
}

// parseTruthy accepts "yes", "true", and "1" case-insensitively.
// Everything else, including an absent cell, is false.
func parseTruthy(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "yes", "true", "1":
		return true
	default:
		return false
	}
}

// snapshotHash computes the content-addressed hash of a rule set. Rules are
// ordered by identity key first so row order in the source never changes
// the snapshot.
func snapshotHash(rules []contracts.PermissionRule) (string, error) {
	sorted := make([]contracts.PermissionRule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })
	return canonical.Hash(sorted)
}
