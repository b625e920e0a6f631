package querysync

import (
	"sort"
	"sync"
)

// InvalidationRule lists the query names a command makes stale on success.
// Names are matched exactly and cover every params variant of the query.
type InvalidationRule []string

// Invalidates declares a rule over names.
func Invalidates(names ...string) InvalidationRule {
	return InvalidationRule(dedupeStrings(names))
}

// RuleSource resolves the rule declared for a command.
type RuleSource interface {
	RuleFor(command string) InvalidationRule
}

// Rules is a static command to rule registry.
type Rules struct {
	mu    sync.RWMutex
	rules map[string]InvalidationRule
}

// NewRules creates an empty registry.
func NewRules() *Rules {
	return &Rules{rules: make(map[string]InvalidationRule)}
}

// Declare sets the rule for command, replacing any previous one.
func (r *Rules) Declare(command string, rule InvalidationRule) *Rules {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[command] = rule
	return r
}

// RuleFor implements RuleSource.
func (r *Rules) RuleFor(command string) InvalidationRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[command]
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
