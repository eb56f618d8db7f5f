package rules

import (
	"time"

	"github.com/c360/rulescope/types"
)

// Engine is one rule-evaluation unit serving a single scope. The orchestrator
// owns the engine lifecycle and is the only writer; implementations do not
// need to be safe for concurrent use by the orchestrator.
//
// A returned error from any method marks the owning deployment as errored
// until the deployment is rebuilt.
type Engine interface {
	// AddRuleset loads or replaces a ruleset in the engine.
	AddRuleset(ruleset *types.Ruleset) error

	// RemoveRuleset unloads a ruleset from the engine.
	RemoveRuleset(ruleset *types.Ruleset) error

	// UpdateFact inserts or replaces a state fact.
	UpdateFact(state *types.AssetState) error

	// RetractFact removes a state fact.
	RetractFact(state *types.AssetState) error

	// InsertEvent inserts a transient event fact. The engine discards the
	// event on its own once the expiration offset elapses.
	InsertEvent(expiration time.Duration, event *types.AssetEvent) error

	// Stop releases the engine's resources. Called exactly once, when the
	// deployment holding the engine is removed or the service shuts down.
	Stop() error
}

// EngineFactory creates the engine for a newly required scope.
type EngineFactory func(scope types.ScopeKey) (Engine, error)
