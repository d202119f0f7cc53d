// Package memory provides in-memory stores for rules and workflow
// definitions. All stores are safe for concurrent access; the engine owns
// them for the process lifetime.
package memory

import (
	"fmt"
	"sync"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// RuleRegistry is a concurrent store of registered rules keyed by rule id.
// Rules are immutable once registered; the enabled flag is the only mutable
// bit and is owned here, so disabling a rule actually gates evaluation.
type RuleRegistry struct {
	mu      sync.RWMutex
	rules   map[string]rule.Rule
	enabled map[string]bool
	order   []string // registration order, for deterministic All()
	closed  bool
}

// NewRuleRegistry creates an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{
		rules:   make(map[string]rule.Rule),
		enabled: make(map[string]bool),
	}
}

// Register validates and inserts a rule. Registration is rejected, with no
// mutation, when the rule fails its self-check, when the id is already
// registered, or after Close. Duplicate ids are rejected rather than
// silently overwritten.
func (r *RuleRegistry) Register(rl rule.Rule) error {
	if err := rl.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return rule.ErrEngineClosed
	}
	id := rl.ID()
	if _, exists := r.rules[id]; exists {
		return fmt.Errorf("%w: %s", rule.ErrDuplicateRule, id)
	}

	r.rules[id] = rl
	r.enabled[id] = true
	r.order = append(r.order, id)
	return nil
}

// Unregister removes a rule. Returns false if the id is absent.
func (r *RuleRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return false
	}
	delete(r.rules, id)
	delete(r.enabled, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the rule with the given id.
func (r *RuleRegistry) Get(id string) (rule.Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rl, ok := r.rules[id]
	return rl, ok
}

// All returns every registered rule in registration order.
func (r *RuleRegistry) All() []rule.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]rule.Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rules[id])
	}
	return out
}

// ByCategory returns the rules registered under the given category.
func (r *RuleRegistry) ByCategory(category string) []rule.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []rule.Rule
	for _, id := range r.order {
		if r.rules[id].Info().Category == category {
			out = append(out, r.rules[id])
		}
	}
	return out
}

// ByTags returns the rules carrying any of the given tags (any-tag match,
// not all-tag match).
func (r *RuleRegistry) ByTags(tags []string) []rule.Rule {
	want := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		want[t] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []rule.Rule
	for _, id := range r.order {
		for _, t := range r.rules[id].Info().Tags {
			if _, ok := want[t]; ok {
				out = append(out, r.rules[id])
				break
			}
		}
	}
	return out
}

// SetEnabled toggles evaluation of a rule. Returns false if the id is
// absent. Disabled rules never execute; they produce failure results.
func (r *RuleRegistry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return false
	}
	r.enabled[id] = enabled
	return true
}

// IsEnabled reports whether a rule exists and is enabled.
func (r *RuleRegistry) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.enabled[id]
}

// Count returns the number of registered rules.
func (r *RuleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rules)
}

// Close marks the registry shut down. Subsequent registrations are
// rejected; reads still work so in-flight work can finish.
func (r *RuleRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

// Clear removes every rule. Called on engine shutdown.
func (r *RuleRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = make(map[string]rule.Rule)
	r.enabled = make(map[string]bool)
	r.order = nil
}
