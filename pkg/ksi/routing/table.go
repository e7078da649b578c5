package routing

import (
	"sort"
	"sync"

	"github.com/durapensa/ksi-go/pkg/ksi/errors"
	"github.com/durapensa/ksi-go/pkg/ksi/event"
)

// Table holds the live set of transformer rules. Mutations are
// serialized against reads; Match returns a consistent snapshot for the
// duration of one dispatch.
type Table struct {
	mu      sync.RWMutex
	entries []tableEntry
	seq     int
}

// tableEntry pairs a rule with its declaration order for stable
// priority ties.
type tableEntry struct {
	rule Rule
	seq  int
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{}
}

// Add validates and inserts a rule. A rule with the same name as an
// existing one is rejected.
func (t *Table) Add(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.rule.Name == rule.Name {
			return &errors.InvalidRuleError{Rule: rule.Name, Field: "name", Message: "rule already exists"}
		}
	}

	t.entries = append(t.entries, tableEntry{rule: rule, seq: t.seq})
	t.seq++
	return nil
}

// Remove deletes a rule by name. Returns false if no rule had the name.
func (t *Table) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.rule.Name == name {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Match returns the rules whose source pattern matches the event name,
// ordered by descending priority with declaration order breaking ties.
func (t *Table) Match(eventName string) []Rule {
	t.mu.RLock()
	matched := make([]tableEntry, 0, 4)
	for _, e := range t.entries {
		if event.MatchPattern(e.rule.SourcePattern, eventName) {
			matched = append(matched, e)
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].rule.Priority != matched[j].rule.Priority {
			return matched[i].rule.Priority > matched[j].rule.Priority
		}
		return matched[i].seq < matched[j].seq
	})

	rules := make([]Rule, len(matched))
	for i, e := range matched {
		rules[i] = e.rule
	}
	return rules
}

// Rules returns all rules in declaration order. A non-empty
// sourcePattern keeps only rules whose source pattern equals it
// exactly.
func (t *Table) Rules(sourcePattern string) []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rules := make([]Rule, 0, len(t.entries))
	for _, e := range t.entries {
		if sourcePattern != "" && e.rule.SourcePattern != sourcePattern {
			continue
		}
		rules = append(rules, e.rule)
	}
	return rules
}

// Len returns the number of rules.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of all rules in declaration order, suitable
// for checkpointing.
func (t *Table) Snapshot() []Rule {
	return t.Rules("")
}

// Replace swaps the entire rule set, validating every rule first. On
// any validation error the table is left unchanged. Used by checkpoint
// restore.
func (t *Table) Replace(rules []Rule) error {
	entries := make([]tableEntry, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		entries[i] = tableEntry{rule: r, seq: i}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = entries
	t.seq = len(entries)
	return nil
}
