package rules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/types"
)

func TestProcessRulesetChange_DeploySeedsNewDeployment(t *testing.T) {
	h := newHarness(t)
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: true})
	h.start(t)
	ctx := context.Background()

	// Facts arrive before any deployment exists; they are indexed only
	require.NoError(t, h.service.UpdateAssetState(stateFact("a1", "temp", `21`, 1), false))
	require.NoError(t, h.service.UpdateAssetState(stateFact("b9", "temp", `30`, 1), false))

	// The notification payload is partial; the authoritative ruleset comes
	// from storage
	h.store.PutRuleset(assetRuleset("rs1", "realm-a", "a1"))
	notified := &types.Ruleset{ID: "rs1", Enabled: true, Scope: types.ScopeAsset, AssetID: "a1"}
	require.NoError(t, h.service.ProcessRulesetChange(ctx, notified, types.CauseInsert))

	engine := h.engine(t, types.AssetScope("a1"))
	require.Len(t, engine.facts, 1)
	_, ok := engine.facts[types.AttributeRef{AssetID: "a1", Name: "temp"}]
	assert.True(t, ok)
}

func TestProcessRulesetChange_DisableUndeploys(t *testing.T) {
	h := newHarness(t)
	h.store.PutRuleset(globalRuleset("g1"))
	h.start(t)
	ctx := context.Background()

	engine := h.engine(t, types.GlobalScope)

	disabled := globalRuleset("g1")
	disabled.Enabled = false
	require.NoError(t, h.service.ProcessRulesetChange(ctx, disabled, types.CauseUpdate))

	assert.True(t, engine.stopped)
	global, _, _ := h.service.DeploymentCounts()
	assert.Zero(t, global)

	// Duplicate delivery of the same notification is harmless
	require.NoError(t, h.service.ProcessRulesetChange(ctx, disabled, types.CauseUpdate))
}

func TestProcessRulesetChange_AssetRulesetGoneUndeploys(t *testing.T) {
	h := newHarness(t)
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: true})
	h.store.PutRuleset(assetRuleset("rs1", "realm-a", "a1"))
	h.store.PutAsset(&types.Asset{ID: "a1", RealmID: "realm-a", Path: []string{"a1"}})
	h.start(t)
	ctx := context.Background()

	engine := h.engine(t, types.AssetScope("a1"))

	// Enabled in the notification, but deleted from storage in between
	h.store.DeleteRuleset("rs1")
	notified := assetRuleset("rs1", "realm-a", "a1")
	require.NoError(t, h.service.ProcessRulesetChange(ctx, notified, types.CauseUpdate))

	assert.True(t, engine.stopped)
	_, _, assets := h.service.DeploymentCounts()
	assert.Zero(t, assets)
}

func TestProcessTenantChange_DisableEnableCycle(t *testing.T) {
	h := newHarness(t)
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: true})
	h.store.PutRuleset(globalRuleset("g1"))
	h.store.PutRuleset(tenantRuleset("t1", "realm-a"))
	h.store.PutRuleset(assetRuleset("a1", "realm-a", "asset-1"))
	h.store.PutAsset(&types.Asset{ID: "asset-1", RealmID: "realm-a", Path: []string{"root", "asset-1"}})
	h.start(t)
	ctx := context.Background()

	fact := stateFact("asset-1", "temp", `21`, 1)
	fact.Path = []string{"root", "asset-1"}
	require.NoError(t, h.service.UpdateAssetState(fact, false))

	tenantEngine := h.engine(t, types.TenantScope("realm-a"))
	assetEngine := h.engine(t, types.AssetScope("asset-1"))
	globalEngine := h.engine(t, types.GlobalScope)

	// Disable cascades to the tenant deployment and every asset deployment
	// under the realm; the global deployment is untouched
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: false})
	require.NoError(t, h.service.ProcessTenantChange(ctx,
		&types.Tenant{ID: "realm-a", Enabled: false}, types.CauseUpdate))

	assert.True(t, tenantEngine.stopped)
	assert.True(t, assetEngine.stopped)
	assert.False(t, globalEngine.stopped)
	global, tenants, assets := h.service.DeploymentCounts()
	assert.Equal(t, 1, global)
	assert.Zero(t, tenants)
	assert.Zero(t, assets)

	// Facts survive the teardown
	assert.Equal(t, 1, h.service.FactCount())

	// Re-enable restores deployments and reseeds them from the fact index
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: true})
	require.NoError(t, h.service.ProcessTenantChange(ctx,
		&types.Tenant{ID: "realm-a", Enabled: true}, types.CauseUpdate))

	global, tenants, assets = h.service.DeploymentCounts()
	assert.Equal(t, 1, global)
	assert.Equal(t, 1, tenants)
	assert.Equal(t, 1, assets)

	ref := types.AttributeRef{AssetID: "asset-1", Name: "temp"}
	newTenantEngine := h.engine(t, types.TenantScope("realm-a"))
	require.NotSame(t, tenantEngine, newTenantEngine)
	_, ok := newTenantEngine.facts[ref]
	assert.True(t, ok)
	newAssetEngine := h.engine(t, types.AssetScope("asset-1"))
	_, ok = newAssetEngine.facts[ref]
	assert.True(t, ok)

	// Same effective enablement is a no-op
	require.NoError(t, h.service.ProcessTenantChange(ctx,
		&types.Tenant{ID: "realm-a", Enabled: true}, types.CauseUpdate))
	assert.Same(t, newTenantEngine, h.engine(t, types.TenantScope("realm-a")))
}

func TestProcessTenantChange_DeleteDisables(t *testing.T) {
	h := newHarness(t)
	h.store.PutTenant(&types.Tenant{ID: "realm-a", Enabled: true})
	h.store.PutRuleset(tenantRuleset("t1", "realm-a"))
	h.start(t)
	ctx := context.Background()

	engine := h.engine(t, types.TenantScope("realm-a"))

	// DELETE with enabled=true in the stale snapshot still tears down
	h.store.DeleteTenant("realm-a")
	require.NoError(t, h.service.ProcessTenantChange(ctx,
		&types.Tenant{ID: "realm-a", Enabled: true}, types.CauseDelete))

	assert.True(t, engine.stopped)
	_, tenants, _ := h.service.DeploymentCounts()
	assert.Zero(t, tenants)
}

func TestProcessAssetChange_Insert(t *testing.T) {
	h := newHarness(t)
	h.store.PutRuleset(globalRuleset("g1"))
	h.start(t)
	ctx := context.Background()

	h.store.PutAsset(&types.Asset{
		ID:      "a1",
		RealmID: "realm-a",
		Path:    []string{"root", "a1"},
		Attributes: []types.Attribute{
			{Name: "temp", Value: json.RawMessage(`21`), RuleState: true},
			{Name: "label", Value: json.RawMessage(`"x"`)},
		},
	})

	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind:  types.KindAsset,
		Cause: types.CauseInsert,
		Asset: &types.Asset{ID: "a1"},
	}))

	engine := h.engine(t, types.GlobalScope)
	fact, ok := engine.facts[types.AttributeRef{AssetID: "a1", Name: "temp"}]
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, fact.Status)
	assert.Equal(t, 1, h.service.FactCount())
}

func TestProcessAssetChange_UpdateDiffsByValueIgnoringTimestamp(t *testing.T) {
	h := newHarness(t)
	h.store.PutRuleset(globalRuleset("g1"))
	h.start(t)
	ctx := context.Background()

	asset := &types.Asset{
		ID:      "a1",
		RealmID: "realm-a",
		Path:    []string{"root", "a1"},
		Attributes: []types.Attribute{
			{Name: "A", Value: json.RawMessage(`1`), Timestamp: 3, RuleState: true},
			{Name: "B", Value: json.RawMessage(`3`), Timestamp: 4, RuleState: true},
		},
	}
	h.store.PutAsset(asset)

	// Seed both facts
	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind:  types.KindAsset,
		Cause: types.CauseInsert,
		Asset: &types.Asset{ID: "a1"},
	}))

	engine := h.engine(t, types.GlobalScope)
	refA := types.AttributeRef{AssetID: "a1", Name: "A"}
	refB := types.AttributeRef{AssetID: "a1", Name: "B"}
	updatesABefore := engine.updateCounts[refA]
	updatesBBefore := engine.updateCounts[refB]

	// A only changed timestamp, B changed value
	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind:              types.KindAsset,
		Cause:             types.CauseUpdate,
		Asset:             &types.Asset{ID: "a1"},
		ChangedProperties: []string{ChangedPropertyAttributes},
		PreviousAttributes: []types.Attribute{
			{Name: "A", Value: json.RawMessage(`1`), Timestamp: 1, RuleState: true},
			{Name: "B", Value: json.RawMessage(`2`), Timestamp: 2, RuleState: true},
		},
		CurrentAttributes: []types.Attribute{
			{Name: "A", Value: json.RawMessage(`1`), Timestamp: 3, RuleState: true},
			{Name: "B", Value: json.RawMessage(`3`), Timestamp: 4, RuleState: true},
		},
	}))

	assert.Zero(t, engine.retractCounts[refA], "A must not be retracted")
	assert.Equal(t, updatesABefore, engine.updateCounts[refA], "A must not be reinserted")
	assert.Equal(t, 1, engine.retractCounts[refB])
	assert.Equal(t, updatesBBefore+1, engine.updateCounts[refB])
	assert.Equal(t, json.RawMessage(`3`), engine.facts[refB].Value)

	// Without the attribute collection in the changed properties, nothing
	// happens
	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind:              types.KindAsset,
		Cause:             types.CauseUpdate,
		Asset:             &types.Asset{ID: "a1"},
		ChangedProperties: []string{"name"},
		PreviousAttributes: []types.Attribute{
			{Name: "B", Value: json.RawMessage(`3`), RuleState: true},
		},
		CurrentAttributes: []types.Attribute{
			{Name: "B", Value: json.RawMessage(`4`), RuleState: true},
		},
	}))
	assert.Equal(t, json.RawMessage(`3`), engine.facts[refB].Value)
}

func TestProcessAssetChange_DeleteRetractsFromSnapshot(t *testing.T) {
	h := newHarness(t)
	h.store.PutRuleset(globalRuleset("g1"))
	h.start(t)
	ctx := context.Background()

	snapshot := &types.Asset{
		ID:      "a1",
		RealmID: "realm-a",
		Path:    []string{"root", "a1"},
		Attributes: []types.Attribute{
			{Name: "temp", Value: json.RawMessage(`21`), RuleState: true},
		},
	}
	h.store.PutAsset(snapshot)
	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind: types.KindAsset, Cause: types.CauseInsert, Asset: &types.Asset{ID: "a1"},
	}))
	require.Equal(t, 1, h.service.FactCount())

	// The asset is gone from storage; retraction works from the snapshot
	h.store.DeleteAsset("a1")
	require.NoError(t, h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind: types.KindAsset, Cause: types.CauseDelete, Asset: snapshot,
	}))

	assert.Equal(t, 0, h.service.FactCount())
	assert.Empty(t, h.engine(t, types.GlobalScope).facts)
}

func TestProcessAssetChange_RejectsMalformed(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	ctx := context.Background()

	err := h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind: types.KindAsset, Cause: types.CauseInsert,
	})
	assert.Error(t, err)

	err = h.service.ProcessAssetChange(ctx, &types.ChangeNotification{
		Kind: types.KindAsset, Cause: "TRUNCATE", Asset: &types.Asset{ID: "a1"},
	})
	assert.Error(t, err)
}
