package types

import (
	"fmt"

	"github.com/c360/rulescope/errors"
)

// ScopeKind is the level at which a ruleset applies.
type ScopeKind int

const (
	// ScopeGlobal rulesets see facts from every tenant
	ScopeGlobal ScopeKind = iota
	// ScopeTenant rulesets see facts from one realm
	ScopeTenant
	// ScopeAsset rulesets see facts from one asset subtree
	ScopeAsset
)

// String returns the string representation of ScopeKind
func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeTenant:
		return "tenant"
	case ScopeAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// ScopeKey identifies the deployment a ruleset belongs to. ID is empty for
// the global scope, a realm id for tenant scope, and an asset id for asset
// scope.
type ScopeKey struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

// GlobalScope is the key of the single global deployment slot.
var GlobalScope = ScopeKey{Kind: ScopeGlobal}

// TenantScope returns the scope key for a realm
func TenantScope(realmID string) ScopeKey {
	return ScopeKey{Kind: ScopeTenant, ID: realmID}
}

// AssetScope returns the scope key for an asset
func AssetScope(assetID string) ScopeKey {
	return ScopeKey{Kind: ScopeAsset, ID: assetID}
}

// String returns "kind" or "kind:id" for logging
func (k ScopeKey) String() string {
	if k.ID == "" {
		return k.Kind.String()
	}
	return fmt.Sprintf("%s:%s", k.Kind, k.ID)
}

// Ruleset is an immutable-per-version rule definition bound to exactly one
// scope. Scope is fixed at creation; only enablement and rule content may
// change across versions.
type Ruleset struct {
	ID      string `json:"id"`
	Version int64  `json:"version,omitempty"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`

	Scope   ScopeKind `json:"scope"`
	RealmID string    `json:"realmId,omitempty"`
	AssetID string    `json:"assetId,omitempty"`

	// Rules is the rule definition content, opaque to the orchestrator.
	Rules string `json:"rules,omitempty"`
}

// ScopeKey resolves the deployment key for this ruleset's scope discriminant.
func (r *Ruleset) ScopeKey() (ScopeKey, error) {
	switch r.Scope {
	case ScopeGlobal:
		return GlobalScope, nil
	case ScopeTenant:
		if r.RealmID == "" {
			return ScopeKey{}, errors.WrapInvalid(errors.ErrInvalidScope,
				"Ruleset", "ScopeKey", fmt.Sprintf("tenant ruleset %s missing realm id", r.ID))
		}
		return TenantScope(r.RealmID), nil
	case ScopeAsset:
		if r.AssetID == "" {
			return ScopeKey{}, errors.WrapInvalid(errors.ErrInvalidScope,
				"Ruleset", "ScopeKey", fmt.Sprintf("asset ruleset %s missing asset id", r.ID))
		}
		return AssetScope(r.AssetID), nil
	default:
		return ScopeKey{}, errors.WrapInvalid(errors.ErrInvalidScope,
			"Ruleset", "ScopeKey", fmt.Sprintf("ruleset %s has unknown scope %d", r.ID, r.Scope))
	}
}
