package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute_ValueEquals_IgnoresTimestamp(t *testing.T) {
	a := Attribute{Name: "temperature", Value: json.RawMessage(`21.5`), Timestamp: 100}
	b := Attribute{Name: "temperature", Value: json.RawMessage(`21.5`), Timestamp: 900}
	c := Attribute{Name: "temperature", Value: json.RawMessage(`22.0`), Timestamp: 100}
	d := Attribute{Name: "humidity", Value: json.RawMessage(`21.5`), Timestamp: 100}

	assert.True(t, a.ValueEquals(b))
	assert.False(t, a.ValueEquals(c))
	assert.False(t, a.ValueEquals(d))
}

func TestAsset_RuleStateAttributes(t *testing.T) {
	asset := &Asset{
		ID:      "asset-1",
		RealmID: "realm-1",
		Attributes: []Attribute{
			{Name: "temperature", RuleState: true},
			{Name: "label"},
			{Name: "motion", RuleState: true, RuleEvent: true},
		},
	}

	attrs := asset.RuleStateAttributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "temperature", attrs[0].Name)
	assert.Equal(t, "motion", attrs[1].Name)

	_, ok := asset.Attribute("label")
	assert.True(t, ok)
	_, ok = asset.Attribute("missing")
	assert.False(t, ok)
}

func TestRuleset_ScopeKey(t *testing.T) {
	tests := []struct {
		name    string
		ruleset Ruleset
		want    ScopeKey
		wantErr bool
	}{
		{"global", Ruleset{ID: "r1", Scope: ScopeGlobal}, GlobalScope, false},
		{"tenant", Ruleset{ID: "r2", Scope: ScopeTenant, RealmID: "realm-1"}, TenantScope("realm-1"), false},
		{"asset", Ruleset{ID: "r3", Scope: ScopeAsset, AssetID: "asset-1"}, AssetScope("asset-1"), false},
		{"tenant missing realm", Ruleset{ID: "r4", Scope: ScopeTenant}, ScopeKey{}, true},
		{"asset missing id", Ruleset{ID: "r5", Scope: ScopeAsset}, ScopeKey{}, true},
		{"unknown scope", Ruleset{ID: "r6", Scope: ScopeKind(9)}, ScopeKey{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := tt.ruleset.ScopeKey()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, key)
		})
	}
}

func TestScopeKey_String(t *testing.T) {
	assert.Equal(t, "global", GlobalScope.String())
	assert.Equal(t, "tenant:realm-1", TenantScope("realm-1").String())
	assert.Equal(t, "asset:asset-1", AssetScope("asset-1").String())
}

func TestAssetState_Equality(t *testing.T) {
	asset := &Asset{ID: "asset-1", RealmID: "realm-1", Path: []string{"root", "asset-1"}}
	attr := Attribute{Name: "temperature", Value: json.RawMessage(`21.5`), Timestamp: 100, RuleState: true}

	state := NewAssetState(asset, attr)
	assert.Equal(t, StatusPending, state.Status)
	assert.Equal(t, "asset-1", state.Ref.AssetID)

	same := NewAssetState(asset, attr)
	assert.True(t, state.Equals(same))

	// Same ref, different value: ref-equivalent but not identity-equal
	newer := NewAssetState(asset, Attribute{Name: "temperature", Value: json.RawMessage(`25.0`), Timestamp: 200})
	assert.False(t, state.Equals(newer))
	assert.True(t, state.RefEquals(newer))

	other := NewAssetState(asset, Attribute{Name: "humidity", Value: json.RawMessage(`50`)})
	assert.False(t, state.RefEquals(other))
}

func TestNewAssetEvent(t *testing.T) {
	asset := &Asset{ID: "asset-1", RealmID: "realm-1"}
	state := NewAssetState(asset, Attribute{Name: "motion", Value: json.RawMessage(`true`)})

	event := NewAssetEvent(state, "10m")
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "10m", event.Expires)
	assert.Equal(t, state.Ref, event.State.Ref)

	// Each event gets a distinct id
	assert.NotEqual(t, event.ID, NewAssetEvent(state, "").ID)
}

func TestFactEnvelope_RoundTrip(t *testing.T) {
	asset := &Asset{ID: "asset-1", RealmID: "realm-1"}
	state := NewAssetState(asset, Attribute{Name: "temperature", Value: json.RawMessage(`21.5`)})

	env := FactEnvelope{Kind: FactState, State: state}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded FactEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, FactState, decoded.Kind)
	require.NotNil(t, decoded.State)
	assert.Equal(t, state.Ref, decoded.State.Ref)
}
