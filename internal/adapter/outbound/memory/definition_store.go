package memory

import (
	"fmt"
	"sync"

	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/domain/workflow"
)

// DefinitionStore is a concurrent store of workflow definitions keyed by
// workflow id. Definitions are validated before insert and immutable after.
type DefinitionStore struct {
	mu          sync.RWMutex
	definitions map[string]*workflow.Definition
	closed      bool
}

// NewDefinitionStore creates an empty definition store.
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{
		definitions: make(map[string]*workflow.Definition),
	}
}

// Register validates and inserts a definition. Violations of the
// structural invariants (exactly one initial state, at least one terminal
// state, referential integrity) reject the definition with no mutation.
func (s *DefinitionStore) Register(def *workflow.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return rule.ErrEngineClosed
	}
	if _, exists := s.definitions[def.ID]; exists {
		return fmt.Errorf("%w: %s", workflow.ErrDuplicateWorkflow, def.ID)
	}

	s.definitions[def.ID] = def
	return nil
}

// Unregister removes a definition. Returns false if the id is absent.
func (s *DefinitionStore) Unregister(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[id]; !ok {
		return false
	}
	delete(s.definitions, id)
	return true
}

// Get returns the definition with the given id.
func (s *DefinitionStore) Get(id string) (*workflow.Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.definitions[id]
	return def, ok
}

// All returns every registered definition.
func (s *DefinitionStore) All() []*workflow.Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*workflow.Definition, 0, len(s.definitions))
	for _, def := range s.definitions {
		out = append(out, def)
	}
	return out
}

// Count returns the number of registered definitions.
func (s *DefinitionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.definitions)
}

// Close marks the store shut down; subsequent registrations are rejected.
func (s *DefinitionStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

// Clear removes every definition. Called on engine shutdown.
func (s *DefinitionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.definitions = make(map[string]*workflow.Definition)
}
