package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/types"
)

// MemoryStore is an in-memory implementation of RulesetStore, AssetStore and
// IdentityProvider. It is safe for concurrent use and returns copies so
// callers cannot mutate stored entities.
type MemoryStore struct {
	mu       sync.RWMutex
	rulesets map[string]*types.Ruleset
	assets   map[string]*types.Asset
	tenants  map[string]*types.Tenant
}

// Interface checks
var (
	_ RulesetStore     = (*MemoryStore)(nil)
	_ AssetStore       = (*MemoryStore)(nil)
	_ IdentityProvider = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rulesets: make(map[string]*types.Ruleset),
		assets:   make(map[string]*types.Asset),
		tenants:  make(map[string]*types.Tenant),
	}
}

// PutRuleset stores or replaces a ruleset
func (s *MemoryStore) PutRuleset(ruleset *types.Ruleset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ruleset
	s.rulesets[ruleset.ID] = &c
}

// DeleteRuleset removes a ruleset
func (s *MemoryStore) DeleteRuleset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rulesets, id)
}

// PutAsset stores or replaces an asset
func (s *MemoryStore) PutAsset(asset *types.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *asset
	c.Path = slices.Clone(asset.Path)
	c.Attributes = slices.Clone(asset.Attributes)
	s.assets[asset.ID] = &c
}

// DeleteAsset removes an asset
func (s *MemoryStore) DeleteAsset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, id)
}

// PutTenant stores or replaces a tenant
func (s *MemoryStore) PutTenant(tenant *types.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *tenant
	s.tenants[tenant.ID] = &c
}

// DeleteTenant removes a tenant
func (s *MemoryStore) DeleteTenant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tenants, id)
}

// FindEnabledGlobal returns all enabled global-scoped rulesets
func (s *MemoryStore) FindEnabledGlobal(_ context.Context) ([]*types.Ruleset, error) {
	return s.findEnabled(types.ScopeGlobal), nil
}

// FindEnabledTenant returns enabled tenant-scoped rulesets, optionally filtered by realm
func (s *MemoryStore) FindEnabledTenant(_ context.Context, realmIDs ...string) ([]*types.Ruleset, error) {
	return filterRealms(s.findEnabled(types.ScopeTenant), realmIDs), nil
}

// FindEnabledAsset returns enabled asset-scoped rulesets, optionally filtered by realm
func (s *MemoryStore) FindEnabledAsset(_ context.Context, realmIDs ...string) ([]*types.Ruleset, error) {
	return filterRealms(s.findEnabled(types.ScopeAsset), realmIDs), nil
}

// FindEnabledAssetRuleset reloads one enabled asset-scoped ruleset by id
func (s *MemoryStore) FindEnabledAssetRuleset(_ context.Context, id string) (*types.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ruleset, ok := s.rulesets[id]
	if !ok || !ruleset.Enabled || ruleset.Scope != types.ScopeAsset {
		return nil, errors.ErrNotFound
	}
	c := *ruleset
	return &c, nil
}

func (s *MemoryStore) findEnabled(scope types.ScopeKind) []*types.Ruleset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Ruleset
	for _, ruleset := range s.rulesets {
		if ruleset.Enabled && ruleset.Scope == scope {
			c := *ruleset
			out = append(out, &c)
		}
	}
	// Map iteration order is random; keep results deterministic for callers
	slices.SortFunc(out, func(a, b *types.Ruleset) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out
}

func filterRealms(rulesets []*types.Ruleset, realmIDs []string) []*types.Ruleset {
	if len(realmIDs) == 0 {
		return rulesets
	}
	var out []*types.Ruleset
	for _, ruleset := range rulesets {
		if slices.Contains(realmIDs, ruleset.RealmID) {
			out = append(out, ruleset)
		}
	}
	return out
}

// Find loads one asset
func (s *MemoryStore) Find(_ context.Context, id string, _ bool) (*types.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	c := *asset
	c.Path = slices.Clone(asset.Path)
	c.Attributes = slices.Clone(asset.Attributes)
	return &c, nil
}

// FindRuleStateAssets returns every asset with at least one rule-state attribute
func (s *MemoryStore) FindRuleStateAssets(_ context.Context) ([]*types.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Asset
	for _, asset := range s.assets {
		if len(asset.RuleStateAttributes()) == 0 {
			continue
		}
		c := *asset
		c.Path = slices.Clone(asset.Path)
		c.Attributes = slices.Clone(asset.Attributes)
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *types.Asset) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return out, nil
}

// ActiveTenantIDs returns the ids of all enabled tenants
func (s *MemoryStore) ActiveTenantIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, tenant := range s.tenants {
		if tenant.Enabled {
			out = append(out, tenant.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}
