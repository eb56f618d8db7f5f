package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/storage"
	"github.com/c360/rulescope/types"
)

// fakeEngine records every operation so tests can assert on routing, ordering
// and working memory contents. Failures are injected per operation kind.
type fakeEngine struct {
	scope    types.ScopeKey
	rulesets map[string]*types.Ruleset
	facts    map[types.AttributeRef]*types.AssetState
	events   []*types.AssetEvent
	expiries []time.Duration
	stopped  bool

	updateCounts  map[types.AttributeRef]int
	retractCounts map[types.AttributeRef]int

	failUpdate  error
	failAdd     error
	failInsert  error
	failRetract error

	// blockStop, when set, makes Stop wait until the channel is closed.
	blockStop chan struct{}

	// dispatchLog is shared across all engines of a harness and records the
	// scope order in which facts arrive.
	dispatchLog *[]string
}

func newFakeEngine(scope types.ScopeKey, log *[]string) *fakeEngine {
	return &fakeEngine{
		scope:         scope,
		rulesets:      make(map[string]*types.Ruleset),
		facts:         make(map[types.AttributeRef]*types.AssetState),
		updateCounts:  make(map[types.AttributeRef]int),
		retractCounts: make(map[types.AttributeRef]int),
		dispatchLog:   log,
	}
}

func (e *fakeEngine) AddRuleset(ruleset *types.Ruleset) error {
	if e.failAdd != nil {
		return e.failAdd
	}
	e.rulesets[ruleset.ID] = ruleset
	return nil
}

func (e *fakeEngine) RemoveRuleset(ruleset *types.Ruleset) error {
	delete(e.rulesets, ruleset.ID)
	return nil
}

func (e *fakeEngine) UpdateFact(state *types.AssetState) error {
	if e.failUpdate != nil {
		return e.failUpdate
	}
	e.facts[state.Ref] = state
	e.updateCounts[state.Ref]++
	*e.dispatchLog = append(*e.dispatchLog, e.scope.String())
	return nil
}

func (e *fakeEngine) RetractFact(state *types.AssetState) error {
	if e.failRetract != nil {
		return e.failRetract
	}
	delete(e.facts, state.Ref)
	e.retractCounts[state.Ref]++
	return nil
}

func (e *fakeEngine) InsertEvent(expiration time.Duration, event *types.AssetEvent) error {
	if e.failInsert != nil {
		return e.failInsert
	}
	e.events = append(e.events, event)
	e.expiries = append(e.expiries, expiration)
	return nil
}

func (e *fakeEngine) Stop() error {
	if e.blockStop != nil {
		<-e.blockStop
	}
	e.stopped = true
	return nil
}

// harness bundles a service over an in-memory store with a factory that
// hands out fakeEngines and remembers them per scope.
type harness struct {
	store       *storage.MemoryStore
	service     *Service
	engines     map[types.ScopeKey]*fakeEngine
	dispatchLog []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   storage.NewMemoryStore(),
		engines: make(map[types.ScopeKey]*fakeEngine),
	}

	factory := func(scope types.ScopeKey) (Engine, error) {
		engine := newFakeEngine(scope, &h.dispatchLog)
		h.engines[scope] = engine
		return engine, nil
	}

	service, err := NewService(DefaultConfig(), factory, h.store, h.store, h.store, nil)
	require.NoError(t, err)
	require.NoError(t, service.Initialize())
	h.service = service

	return h
}

// start runs the startup replay against whatever the store holds.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.service.Start(context.Background()))
}

// engine returns the fake engine for a scope, failing the test if the scope
// never had a deployment.
func (h *harness) engine(t *testing.T, scope types.ScopeKey) *fakeEngine {
	t.Helper()
	engine, ok := h.engines[scope]
	require.True(t, ok, "no engine was created for scope %s", scope)
	return engine
}
