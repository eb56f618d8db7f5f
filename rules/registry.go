package rules

import (
	"log/slog"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/types"
)

// registry holds the live deployments for all three scope levels: at most one
// global slot, one slot per realm, one slot per asset. Deployments are created
// on the first enabled ruleset for a scope and discarded when the last one is
// removed.
//
// The registry is not safe for concurrent use; the owning service serializes
// all access together with the fact index.
type registry struct {
	global  *Deployment
	tenants map[string]*Deployment
	assets  map[string]*Deployment

	factory EngineFactory
	logger  *slog.Logger
}

func newRegistry(factory EngineFactory) *registry {
	return &registry{
		tenants: make(map[string]*Deployment),
		assets:  make(map[string]*Deployment),
		factory: factory,
		logger:  slog.Default().With("component", "deployment-registry"),
	}
}

// get returns the deployment for a scope key, or nil.
func (r *registry) get(key types.ScopeKey) *Deployment {
	switch key.Kind {
	case types.ScopeGlobal:
		return r.global
	case types.ScopeTenant:
		return r.tenants[key.ID]
	case types.ScopeAsset:
		return r.assets[key.ID]
	default:
		return nil
	}
}

func (r *registry) put(key types.ScopeKey, dep *Deployment) {
	switch key.Kind {
	case types.ScopeGlobal:
		r.global = dep
	case types.ScopeTenant:
		r.tenants[key.ID] = dep
	case types.ScopeAsset:
		r.assets[key.ID] = dep
	}
}

func (r *registry) delete(key types.ScopeKey) {
	switch key.Kind {
	case types.ScopeGlobal:
		r.global = nil
	case types.ScopeTenant:
		delete(r.tenants, key.ID)
	case types.ScopeAsset:
		delete(r.assets, key.ID)
	}
}

// deploy loads a ruleset into the deployment for its scope, creating the
// deployment (and its engine) when the scope has none yet. created reports
// whether a new deployment was built, in which case the caller must replay
// the fact index into it.
func (r *registry) deploy(ruleset *types.Ruleset) (dep *Deployment, created bool, err error) {
	key, err := ruleset.ScopeKey()
	if err != nil {
		return nil, false, err
	}

	dep = r.get(key)
	if dep == nil {
		engine, factoryErr := r.factory(key)
		if factoryErr != nil {
			return nil, false, errors.Wrap(factoryErr, "registry", "deploy",
				"create engine for "+key.String())
		}
		dep = newDeployment(key, engine)
		r.put(key, dep)
		created = true
		r.logger.Info("Deployment created", "scope", key.String())
	}

	if addErr := dep.AddRuleset(ruleset); addErr != nil {
		return dep, created, addErr
	}
	return dep, created, nil
}

// undeploy removes a ruleset from its scope's deployment. When the last
// ruleset leaves, the deployment is stopped and discarded.
func (r *registry) undeploy(ruleset *types.Ruleset) error {
	key, err := ruleset.ScopeKey()
	if err != nil {
		return err
	}

	dep := r.get(key)
	if dep == nil {
		return nil
	}

	empty, removeErr := dep.RemoveRuleset(ruleset)
	if empty {
		if stopErr := dep.Stop(); stopErr != nil && removeErr == nil {
			removeErr = stopErr
		}
		r.delete(key)
		r.logger.Info("Deployment removed", "scope", key.String())
	}
	return removeErr
}

// removeAllForTenant tears down the realm's tenant deployment and every asset
// deployment whose rulesets belong to the realm.
func (r *registry) removeAllForTenant(realmID string) {
	if dep := r.tenants[realmID]; dep != nil {
		for _, rs := range dep.Rulesets() {
			if err := r.undeploy(rs); err != nil {
				r.logger.Warn("Tenant ruleset undeploy failed",
					"realm", realmID, "ruleset", rs.ID, "error", err)
			}
		}
	}

	// Collect first; undeploy mutates the map.
	var doomed []*types.Ruleset
	for _, dep := range r.assets {
		for _, rs := range dep.Rulesets() {
			if rs.RealmID == realmID {
				doomed = append(doomed, rs)
			}
		}
	}
	for _, rs := range doomed {
		if err := r.undeploy(rs); err != nil {
			r.logger.Warn("Asset ruleset undeploy failed",
				"realm", realmID, "ruleset", rs.ID, "error", err)
		}
	}
}

// all returns every live deployment, widest scope first.
func (r *registry) all() []*Deployment {
	deps := make([]*Deployment, 0, 1+len(r.tenants)+len(r.assets))
	if r.global != nil {
		deps = append(deps, r.global)
	}
	for _, dep := range r.tenants {
		deps = append(deps, dep)
	}
	for _, dep := range r.assets {
		deps = append(deps, dep)
	}
	return deps
}

// counts returns the number of live deployments per scope level.
func (r *registry) counts() (global, tenants, assets int) {
	if r.global != nil {
		global = 1
	}
	return global, len(r.tenants), len(r.assets)
}

// stopAll stops every deployment, narrowest scope first, and clears the
// registry.
func (r *registry) stopAll() {
	for id, dep := range r.assets {
		if err := dep.Stop(); err != nil {
			r.logger.Warn("Asset deployment stop failed", "asset", id, "error", err)
		}
	}
	r.assets = make(map[string]*Deployment)

	for id, dep := range r.tenants {
		if err := dep.Stop(); err != nil {
			r.logger.Warn("Tenant deployment stop failed", "realm", id, "error", err)
		}
	}
	r.tenants = make(map[string]*Deployment)

	if r.global != nil {
		if err := r.global.Stop(); err != nil {
			r.logger.Warn("Global deployment stop failed", "error", err)
		}
		r.global = nil
	}
}
