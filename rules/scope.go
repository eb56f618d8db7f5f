package rules

import (
	"github.com/c360/rulescope/types"
)

// chainFor resolves the scope chain for a fact: the global deployment, the
// deployment of the fact's realm, and the deployment of every asset on the
// fact's ancestor path, in that order. Only live deployments appear; a scope
// level with no deployment is simply absent. An empty chain means the fact
// currently interests no one.
//
// The path is the asset id chain from the tree root down to and including the
// fact's own asset, so rulesets scoped to the asset itself resolve alongside
// those scoped to its ancestors.
func (r *registry) chainFor(realmID string, path []string) []*Deployment {
	var chain []*Deployment

	if r.global != nil {
		chain = append(chain, r.global)
	}
	if dep := r.tenants[realmID]; dep != nil {
		chain = append(chain, dep)
	}
	for _, assetID := range path {
		if dep := r.assets[assetID]; dep != nil {
			chain = append(chain, dep)
		}
	}

	return chain
}

// inScope reports whether a fact at (realmID, path) falls inside the given
// scope. This is the same containment rule chainFor applies, used when
// replaying the fact index into a newly created deployment.
func inScope(key types.ScopeKey, realmID string, path []string) bool {
	switch key.Kind {
	case types.ScopeGlobal:
		return true
	case types.ScopeTenant:
		return key.ID == realmID
	case types.ScopeAsset:
		for _, assetID := range path {
			if assetID == key.ID {
				return true
			}
		}
		return false
	default:
		return false
	}
}
