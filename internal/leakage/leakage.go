// Package leakage scans evaluation payloads for post-race fields. It is the
// single safety gate between "pre-race only" data and anything that computes
// success metrics, so it runs before report acceptance and before the
// promotion gate compares champion and challenger.
package leakage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

// forbiddenFields are keys that only exist once a race has been run.
var forbiddenFields = map[string]bool{
	"rank":            true,
	"ord":             true,
	"rcTime":          true,
	"result":          true,
	"resultTime":      true,
	"finish_position": true,
	"top3":            true,
	"actual_result":   true,
	"dividend":        true,
	"payout":          true,
}

// Report is the outcome of a leakage scan. Passed is true iff Issues is
// empty; Issues and ForbiddenFields are sorted for stable artifacts.
type Report struct {
	Passed          bool     `json:"passed"`
	Issues          []string `json:"issues"`
	CheckedRaces    int      `json:"checked_races"`
	ForbiddenFields []string `json:"forbidden_fields"`
}

// ForbiddenFieldNames returns the forbidden key set, sorted.
func ForbiddenFieldNames() []string {
	names := make([]string, 0, len(forbiddenFields))
	for name := range forbiddenFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckDetailedResults scans every result's race payload and reports all
// forbidden fields holding meaningful values. Running it twice on the same
// input yields an identical Report.
func CheckDetailedResults(results []models.DetailedResult) Report {
	seen := make(map[string]bool)
	for _, r := range results {
		walk(r.RaceData, "race_data", seen)
	}
	return buildReport(seen, len(results))
}

// CheckPayload scans a single raw payload, e.g. a race file before it is
// fed to a model.
func CheckPayload(payload map[string]any) Report {
	seen := make(map[string]bool)
	walk(payload, "race_data", seen)
	return buildReport(seen, 1)
}

func buildReport(seen map[string]bool, races int) Report {
	issues := make([]string, 0, len(seen))
	for path := range seen {
		issues = append(issues, path)
	}
	sort.Strings(issues)
	return Report{
		Passed:          len(issues) == 0,
		Issues:          issues,
		CheckedRaces:    races,
		ForbiddenFields: ForbiddenFieldNames(),
	}
}

// walk recurses through maps and lists, tracking a dotted/bracketed path.
// A forbidden key is flagged only when its value is meaningful:
// present-but-null placeholders in pre-race schemas are not leakage.
func walk(value any, path string, seen map[string]bool) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := path + "." + key
			if forbiddenFields[key] && meaningful(child) {
				seen[childPath] = true
			}
			walk(child, childPath, seen)
		}
	case []any:
		for i, child := range v {
			walk(child, fmt.Sprintf("%s[%d]", path, i), seen)
		}
	}
}

// meaningful reports whether a value carries real post-race information.
// Nil, blank strings, and empty collections are schema placeholders.
func meaningful(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
