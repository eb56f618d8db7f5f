package rules

import (
	"github.com/c360/rulescope/types"
)

// factIndex is the authoritative in-memory set of current state facts, one
// entry per attribute reference. It exists so newly created deployments can
// be seeded with everything already known for their scope.
//
// The index is not safe for concurrent use; the owning service serializes
// access together with the deployment registry.
type factIndex struct {
	states []*types.AssetState
}

func newFactIndex() *factIndex {
	return &factIndex{}
}

// upsert inserts a state fact, superseding any prior fact for the same
// attribute reference.
func (ix *factIndex) upsert(state *types.AssetState) {
	ix.remove(state)
	ix.states = append(ix.states, state)
}

// remove drops a state fact. An exact match (reference, value and timestamp)
// is preferred; when none exists, every fact carrying the same attribute
// reference is dropped instead, so reconstructed facts from reconciliation
// still clear the entry.
func (ix *factIndex) remove(state *types.AssetState) bool {
	for i, existing := range ix.states {
		if existing.Equals(state) {
			ix.states = append(ix.states[:i], ix.states[i+1:]...)
			return true
		}
	}

	removed := false
	kept := ix.states[:0]
	for _, existing := range ix.states {
		if existing.RefEquals(state) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	ix.states = kept
	return removed
}

// all returns the current facts. The slice is shared; callers only iterate.
func (ix *factIndex) all() []*types.AssetState {
	return ix.states
}

// inScope returns the current facts that fall inside a scope, used to seed a
// newly created deployment.
func (ix *factIndex) inScope(key types.ScopeKey) []*types.AssetState {
	var out []*types.AssetState
	for _, state := range ix.states {
		if inScope(key, state.RealmID, state.Path) {
			out = append(out, state)
		}
	}
	return out
}

func (ix *factIndex) len() int {
	return len(ix.states)
}
