package engine

import (
	"sync"
	"time"

	"github.com/c360/rulescope/rules"
	"github.com/c360/rulescope/types"
)

// Memory is an in-process Engine that just holds working memory. It evaluates
// nothing; it exists so the orchestrator can run end to end without an
// external evaluation runtime.
type Memory struct {
	mu       sync.Mutex
	scope    types.ScopeKey
	rulesets map[string]*types.Ruleset
	facts    map[types.AttributeRef]*types.AssetState
	events   map[string]*types.AssetEvent
}

var _ rules.Engine = (*Memory)(nil)

// NewMemoryFactory returns an EngineFactory producing in-memory engines.
func NewMemoryFactory() rules.EngineFactory {
	return func(scope types.ScopeKey) (rules.Engine, error) {
		return NewMemory(scope), nil
	}
}

// NewMemory creates an in-memory engine for one scope.
func NewMemory(scope types.ScopeKey) *Memory {
	return &Memory{
		scope:    scope,
		rulesets: make(map[string]*types.Ruleset),
		facts:    make(map[types.AttributeRef]*types.AssetState),
		events:   make(map[string]*types.AssetEvent),
	}
}

// Scope returns the scope the engine serves.
func (e *Memory) Scope() types.ScopeKey {
	return e.scope
}

// AddRuleset loads or replaces a ruleset.
func (e *Memory) AddRuleset(ruleset *types.Ruleset) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rulesets[ruleset.ID] = ruleset
	return nil
}

// RemoveRuleset unloads a ruleset.
func (e *Memory) RemoveRuleset(ruleset *types.Ruleset) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rulesets, ruleset.ID)
	return nil
}

// UpdateFact inserts or replaces a state fact.
func (e *Memory) UpdateFact(state *types.AssetState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts[state.Ref] = state
	return nil
}

// RetractFact removes a state fact.
func (e *Memory) RetractFact(state *types.AssetState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.facts, state.Ref)
	return nil
}

// InsertEvent holds an event until its expiration elapses.
func (e *Memory) InsertEvent(expiration time.Duration, event *types.AssetEvent) error {
	e.mu.Lock()
	e.events[event.ID] = event
	e.mu.Unlock()

	time.AfterFunc(expiration, func() {
		e.mu.Lock()
		delete(e.events, event.ID)
		e.mu.Unlock()
	})
	return nil
}

// Stop clears working memory.
func (e *Memory) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rulesets = make(map[string]*types.Ruleset)
	e.facts = make(map[types.AttributeRef]*types.AssetState)
	e.events = make(map[string]*types.AssetEvent)
	return nil
}

// FactCount returns the number of state facts held.
func (e *Memory) FactCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.facts)
}

// EventCount returns the number of unexpired events held.
func (e *Memory) EventCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

// RulesetCount returns the number of loaded rulesets.
func (e *Memory) RulesetCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rulesets)
}
