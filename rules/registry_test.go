package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/types"
)

func newTestRegistry() (*registry, map[types.ScopeKey]*fakeEngine, *[]string) {
	engines := make(map[types.ScopeKey]*fakeEngine)
	log := &[]string{}
	r := newRegistry(func(scope types.ScopeKey) (Engine, error) {
		engine := newFakeEngine(scope, log)
		engines[scope] = engine
		return engine, nil
	})
	return r, engines, log
}

func globalRuleset(id string) *types.Ruleset {
	return &types.Ruleset{ID: id, Enabled: true, Scope: types.ScopeGlobal}
}

func tenantRuleset(id, realmID string) *types.Ruleset {
	return &types.Ruleset{ID: id, Enabled: true, Scope: types.ScopeTenant, RealmID: realmID}
}

func assetRuleset(id, realmID, assetID string) *types.Ruleset {
	return &types.Ruleset{ID: id, Enabled: true, Scope: types.ScopeAsset, RealmID: realmID, AssetID: assetID}
}

func TestRegistry_DeployCreatesOnePerScope(t *testing.T) {
	r, engines, _ := newTestRegistry()

	dep, created, err := r.deploy(globalRuleset("g1"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, types.GlobalScope, dep.Scope())

	// Second ruleset in the same scope reuses the deployment
	dep2, created, err := r.deploy(globalRuleset("g2"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, dep, dep2)
	assert.Len(t, engines, 1)
	assert.ElementsMatch(t, []string{"g1", "g2"}, dep.RulesetIDs())

	global, tenants, assets := r.counts()
	assert.Equal(t, 1, global)
	assert.Equal(t, 0, tenants)
	assert.Equal(t, 0, assets)
}

func TestRegistry_DeployRejectsInvalidScope(t *testing.T) {
	r, _, _ := newTestRegistry()

	_, _, err := r.deploy(&types.Ruleset{ID: "bad", Enabled: true, Scope: types.ScopeTenant})
	assert.Error(t, err)
}

func TestRegistry_UndeployLastRulesetStopsEngine(t *testing.T) {
	r, engines, _ := newTestRegistry()

	rs1 := tenantRuleset("t1", "realm-a")
	rs2 := tenantRuleset("t2", "realm-a")
	_, _, err := r.deploy(rs1)
	require.NoError(t, err)
	_, _, err = r.deploy(rs2)
	require.NoError(t, err)

	engine := engines[types.TenantScope("realm-a")]

	require.NoError(t, r.undeploy(rs1))
	assert.False(t, engine.stopped)
	assert.NotNil(t, r.get(types.TenantScope("realm-a")))

	require.NoError(t, r.undeploy(rs2))
	assert.True(t, engine.stopped)
	assert.Nil(t, r.get(types.TenantScope("realm-a")))

	// Undeploying an unknown ruleset is a no-op
	require.NoError(t, r.undeploy(rs2))
}

func TestRegistry_RemoveAllForTenant(t *testing.T) {
	r, engines, _ := newTestRegistry()

	_, _, err := r.deploy(globalRuleset("g1"))
	require.NoError(t, err)
	_, _, err = r.deploy(tenantRuleset("t1", "realm-a"))
	require.NoError(t, err)
	_, _, err = r.deploy(assetRuleset("a1", "realm-a", "asset-1"))
	require.NoError(t, err)
	_, _, err = r.deploy(assetRuleset("a2", "realm-b", "asset-2"))
	require.NoError(t, err)

	r.removeAllForTenant("realm-a")

	global, tenants, assets := r.counts()
	assert.Equal(t, 1, global)
	assert.Equal(t, 0, tenants)
	assert.Equal(t, 1, assets)

	assert.True(t, engines[types.TenantScope("realm-a")].stopped)
	assert.True(t, engines[types.AssetScope("asset-1")].stopped)
	assert.False(t, engines[types.AssetScope("asset-2")].stopped)
	assert.False(t, engines[types.GlobalScope].stopped)
}

func TestRegistry_ChainForOrder(t *testing.T) {
	r, _, _ := newTestRegistry()

	_, _, err := r.deploy(globalRuleset("g1"))
	require.NoError(t, err)
	_, _, err = r.deploy(tenantRuleset("t1", "realm-a"))
	require.NoError(t, err)
	_, _, err = r.deploy(assetRuleset("a-root", "realm-a", "root"))
	require.NoError(t, err)
	_, _, err = r.deploy(assetRuleset("a-leaf", "realm-a", "leaf"))
	require.NoError(t, err)

	chain := r.chainFor("realm-a", []string{"root", "mid", "leaf"})
	require.Len(t, chain, 4)
	assert.Equal(t, types.GlobalScope, chain[0].Scope())
	assert.Equal(t, types.TenantScope("realm-a"), chain[1].Scope())
	assert.Equal(t, types.AssetScope("root"), chain[2].Scope())
	assert.Equal(t, types.AssetScope("leaf"), chain[3].Scope())

	// Other realm sees only the global deployment
	chain = r.chainFor("realm-b", []string{"other"})
	require.Len(t, chain, 1)
	assert.Equal(t, types.GlobalScope, chain[0].Scope())
}

func TestRegistry_StopAll(t *testing.T) {
	r, engines, _ := newTestRegistry()

	_, _, err := r.deploy(globalRuleset("g1"))
	require.NoError(t, err)
	_, _, err = r.deploy(tenantRuleset("t1", "realm-a"))
	require.NoError(t, err)
	_, _, err = r.deploy(assetRuleset("a1", "realm-a", "asset-1"))
	require.NoError(t, err)

	r.stopAll()

	for scope, engine := range engines {
		assert.True(t, engine.stopped, "engine for %s not stopped", scope)
	}
	global, tenants, assets := r.counts()
	assert.Zero(t, global+tenants+assets)
}
