package improver

import (
	"fmt"
	"sort"
	"strings"
)

// ConsensusModification is an approved group representative: the lowest
// priority proposal for a (section, action) pair, plus every model that
// voted for the pair.
type ConsensusModification struct {
	Modification
	Models []string
}

// Change records one applied edit for the improvement audit trail.
type Change struct {
	Section     string   `json:"section"`
	Action      Action   `json:"action"`
	Description string   `json:"description"`
	OldContent  string   `json:"old_content,omitempty"`
	NewContent  string   `json:"new_content,omitempty"`
	Models      []string `json:"models"`
	Priority    int      `json:"priority"`
}

// VoteModifications groups proposals by (section, action) and approves a
// group when at least minConsensus distinct models contributed to it.
// Each approved group is represented by its numerically lowest-priority
// proposal; ties break on source model name so the outcome does not
// depend on response arrival order. Results are sorted by priority
// ascending, then section.
func VoteModifications(mods []Modification, minConsensus int) []ConsensusModification {
	if minConsensus < 1 {
		minConsensus = 1
	}

	type group struct {
		models map[string]bool
		best   Modification
		hasAny bool
	}
	groups := map[string]*group{}

	for _, m := range mods {
		key := m.Section + "\x00" + string(m.Action)
		g := groups[key]
		if g == nil {
			g = &group{models: map[string]bool{}}
			groups[key] = g
		}
		g.models[m.SourceModel] = true
		if !g.hasAny ||
			m.Priority < g.best.Priority ||
			(m.Priority == g.best.Priority && m.SourceModel < g.best.SourceModel) {
			g.best = m
			g.hasAny = true
		}
	}

	var approved []ConsensusModification
	for _, g := range groups {
		if len(g.models) < minConsensus {
			continue
		}
		models := make([]string, 0, len(g.models))
		for name := range g.models {
			models = append(models, name)
		}
		sort.Strings(models)
		approved = append(approved, ConsensusModification{Modification: g.best, Models: models})
	}

	sort.Slice(approved, func(i, j int) bool {
		if approved[i].Priority != approved[j].Priority {
			return approved[i].Priority < approved[j].Priority
		}
		return approved[i].Section < approved[j].Section
	})
	return approved
}

// ApplyModifications applies approved edits to a deep copy of the
// structure, tagging the copy with newVersion. The original is never
// mutated. Removing an absent section is a no-op and produces no Change.
func ApplyModifications(current *PromptStructure, approved []ConsensusModification, newVersion string) (*PromptStructure, []Change) {
	next := current.Clone()
	next.Version = newVersion

	var changes []Change
	for _, cm := range approved {
		old, exists := next.Content(cm.Section)

		switch cm.Action {
		case ActionModify, ActionAdd:
			next.SetSection(cm.Section, cm.Content)
			changes = append(changes, Change{
				Section:     cm.Section,
				Action:      cm.Action,
				Description: attributedDescription(cm),
				OldContent:  old,
				NewContent:  cm.Content,
				Models:      cm.Models,
				Priority:    cm.Priority,
			})
		case ActionRemove:
			if !exists {
				continue
			}
			next.RemoveSection(cm.Section)
			changes = append(changes, Change{
				Section:     cm.Section,
				Action:      cm.Action,
				Description: attributedDescription(cm),
				OldContent:  old,
				Models:      cm.Models,
				Priority:    cm.Priority,
			})
		}
	}
	return next, changes
}

func attributedDescription(cm ConsensusModification) string {
	return fmt.Sprintf("[%s] %s", strings.Join(cm.Models, ", "), cm.Description)
}
