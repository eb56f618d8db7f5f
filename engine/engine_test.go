package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulescope/natsclient"
	"github.com/c360/rulescope/types"
)

func TestSubjectFor(t *testing.T) {
	tests := []struct {
		name  string
		scope types.ScopeKey
		want  string
	}{
		{name: "global", scope: types.GlobalScope, want: "rules.engine.global"},
		{name: "tenant", scope: types.TenantScope("realm-a"), want: "rules.engine.tenant.realm-a"},
		{name: "asset", scope: types.AssetScope("asset-1"), want: "rules.engine.asset.asset-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubjectFor("rules.engine", tt.scope))
		})
	}
}

func TestNATS_PublishRequiresConnection(t *testing.T) {
	client, err := natsclient.NewClient("nats://127.0.0.1:4222")
	require.NoError(t, err)

	factory := NewNATSFactory(client, "rules.engine")
	eng, err := factory(types.TenantScope("realm-a"))
	require.NoError(t, err)

	nats, ok := eng.(*NATS)
	require.True(t, ok)
	assert.Equal(t, "rules.engine.tenant.realm-a", nats.Subject())

	// A disconnected client makes every operation fail, which the
	// orchestrator records as a deployment error
	assert.Error(t, eng.AddRuleset(&types.Ruleset{ID: "rs1", Scope: types.ScopeTenant, RealmID: "realm-a"}))
	assert.Error(t, eng.UpdateFact(&types.AssetState{}))
	assert.Error(t, eng.RetractFact(&types.AssetState{}))
	assert.Error(t, eng.InsertEvent(time.Minute, &types.AssetEvent{ID: "ev1"}))

	// Stop swallows publish failures
	assert.NoError(t, eng.Stop())
}

func TestMemoryEngine(t *testing.T) {
	eng := NewMemory(types.AssetScope("asset-1"))

	require.NoError(t, eng.AddRuleset(&types.Ruleset{ID: "rs1"}))
	assert.Equal(t, 1, eng.RulesetCount())

	state := &types.AssetState{Ref: types.AttributeRef{AssetID: "asset-1", Name: "temp"}}
	require.NoError(t, eng.UpdateFact(state))
	require.NoError(t, eng.UpdateFact(state))
	assert.Equal(t, 1, eng.FactCount())

	require.NoError(t, eng.RetractFact(state))
	assert.Equal(t, 0, eng.FactCount())

	require.NoError(t, eng.InsertEvent(10*time.Millisecond, &types.AssetEvent{ID: "ev1"}))
	assert.Equal(t, 1, eng.EventCount())
	assert.Eventually(t, func() bool { return eng.EventCount() == 0 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, eng.RemoveRuleset(&types.Ruleset{ID: "rs1"}))
	assert.Equal(t, 0, eng.RulesetCount())

	require.NoError(t, eng.AddRuleset(&types.Ruleset{ID: "rs2"}))
	require.NoError(t, eng.Stop())
	assert.Equal(t, 0, eng.RulesetCount())
}
