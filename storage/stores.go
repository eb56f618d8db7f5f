package storage

import (
	"context"

	"github.com/c360/rulescope/types"
)

// RulesetStore is the durable home of rule definitions.
type RulesetStore interface {
	// FindEnabledGlobal returns all enabled global-scoped rulesets.
	FindEnabledGlobal(ctx context.Context) ([]*types.Ruleset, error)

	// FindEnabledTenant returns enabled tenant-scoped rulesets, optionally
	// filtered to the given realms.
	FindEnabledTenant(ctx context.Context, realmIDs ...string) ([]*types.Ruleset, error)

	// FindEnabledAsset returns enabled asset-scoped rulesets, optionally
	// filtered to the given realms.
	FindEnabledAsset(ctx context.Context, realmIDs ...string) ([]*types.Ruleset, error)

	// FindEnabledAssetRuleset reloads one enabled asset-scoped ruleset by id.
	// Returns errors.ErrNotFound when the ruleset is missing or disabled.
	FindEnabledAssetRuleset(ctx context.Context, id string) (*types.Ruleset, error)
}

// AssetStore is the durable home of the asset tree.
type AssetStore interface {
	// Find loads one asset. loadFullGraph requests the complete entity
	// including path and attributes rather than a shallow row.
	Find(ctx context.Context, id string, loadFullGraph bool) (*types.Asset, error)

	// FindRuleStateAssets returns every asset with at least one rule-state
	// attribute, fully loaded.
	FindRuleStateAssets(ctx context.Context) ([]*types.Asset, error)
}

// IdentityProvider resolves tenant enablement.
type IdentityProvider interface {
	// ActiveTenantIDs returns the ids of all currently enabled tenants.
	ActiveTenantIDs(ctx context.Context) ([]string, error)
}
