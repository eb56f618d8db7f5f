package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/natsclient"
	"github.com/c360/rulescope/types"
)

// KV bucket names used by the JetStream-backed store
const (
	BucketRulesets = "RULESETS"
	BucketAssets   = "ASSETS"
	BucketTenants  = "TENANTS"
)

// KVStore implements RulesetStore, AssetStore and IdentityProvider on top of
// NATS JetStream key-value buckets. Entities are stored as JSON keyed by id.
type KVStore struct {
	rulesets jetstream.KeyValue
	assets   jetstream.KeyValue
	tenants  jetstream.KeyValue
	logger   *slog.Logger
}

// Interface checks
var (
	_ RulesetStore     = (*KVStore)(nil)
	_ AssetStore       = (*KVStore)(nil)
	_ IdentityProvider = (*KVStore)(nil)
)

// NewKVStore creates (or binds to) the entity buckets through the client.
func NewKVStore(ctx context.Context, client *natsclient.Client) (*KVStore, error) {
	buckets := make(map[string]jetstream.KeyValue, 3)
	for _, name := range []string{BucketRulesets, BucketAssets, BucketTenants} {
		bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: "rulescope entity storage",
			History:     5,
		})
		if err != nil {
			return nil, errors.Wrap(err, "KVStore", "NewKVStore",
				fmt.Sprintf("create bucket %s", name))
		}
		buckets[name] = bucket
	}

	return &KVStore{
		rulesets: buckets[BucketRulesets],
		assets:   buckets[BucketAssets],
		tenants:  buckets[BucketTenants],
		logger:   slog.Default().With("component", "kv-store"),
	}, nil
}

// PutRuleset stores a ruleset as JSON under its id
func (s *KVStore) PutRuleset(ctx context.Context, ruleset *types.Ruleset) error {
	return s.put(ctx, s.rulesets, ruleset.ID, ruleset)
}

// PutAsset stores an asset as JSON under its id
func (s *KVStore) PutAsset(ctx context.Context, asset *types.Asset) error {
	return s.put(ctx, s.assets, asset.ID, asset)
}

// PutTenant stores a tenant as JSON under its id
func (s *KVStore) PutTenant(ctx context.Context, tenant *types.Tenant) error {
	return s.put(ctx, s.tenants, tenant.ID, tenant)
}

func (s *KVStore) put(ctx context.Context, bucket jetstream.KeyValue, key string, entity any) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return errors.WrapInvalid(err, "KVStore", "put", "marshal entity")
	}
	if _, err := bucket.Put(ctx, key, data); err != nil {
		return errors.WrapTransient(err, "KVStore", "put", fmt.Sprintf("store %s", key))
	}
	return nil
}

// FindEnabledGlobal returns all enabled global-scoped rulesets
func (s *KVStore) FindEnabledGlobal(ctx context.Context) ([]*types.Ruleset, error) {
	return s.findRulesets(ctx, types.ScopeGlobal, nil)
}

// FindEnabledTenant returns enabled tenant-scoped rulesets, optionally filtered by realm
func (s *KVStore) FindEnabledTenant(ctx context.Context, realmIDs ...string) ([]*types.Ruleset, error) {
	return s.findRulesets(ctx, types.ScopeTenant, realmIDs)
}

// FindEnabledAsset returns enabled asset-scoped rulesets, optionally filtered by realm
func (s *KVStore) FindEnabledAsset(ctx context.Context, realmIDs ...string) ([]*types.Ruleset, error) {
	return s.findRulesets(ctx, types.ScopeAsset, realmIDs)
}

// FindEnabledAssetRuleset reloads one enabled asset-scoped ruleset by id
func (s *KVStore) FindEnabledAssetRuleset(ctx context.Context, id string) (*types.Ruleset, error) {
	var ruleset types.Ruleset
	if err := s.get(ctx, s.rulesets, id, &ruleset); err != nil {
		return nil, err
	}
	if !ruleset.Enabled || ruleset.Scope != types.ScopeAsset {
		return nil, errors.ErrNotFound
	}
	return &ruleset, nil
}

func (s *KVStore) findRulesets(ctx context.Context, scope types.ScopeKind, realmIDs []string) ([]*types.Ruleset, error) {
	var out []*types.Ruleset
	err := s.forEach(ctx, s.rulesets, func(data []byte) error {
		var ruleset types.Ruleset
		if err := json.Unmarshal(data, &ruleset); err != nil {
			s.logger.Warn("Skipping undecodable ruleset entry", "error", err)
			return nil
		}
		if !ruleset.Enabled || ruleset.Scope != scope {
			return nil
		}
		if len(realmIDs) > 0 && !contains(realmIDs, ruleset.RealmID) {
			return nil
		}
		out = append(out, &ruleset)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Find loads one asset
func (s *KVStore) Find(ctx context.Context, id string, _ bool) (*types.Asset, error) {
	var asset types.Asset
	if err := s.get(ctx, s.assets, id, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// FindRuleStateAssets returns every asset with at least one rule-state attribute
func (s *KVStore) FindRuleStateAssets(ctx context.Context) ([]*types.Asset, error) {
	var out []*types.Asset
	err := s.forEach(ctx, s.assets, func(data []byte) error {
		var asset types.Asset
		if err := json.Unmarshal(data, &asset); err != nil {
			s.logger.Warn("Skipping undecodable asset entry", "error", err)
			return nil
		}
		if len(asset.RuleStateAttributes()) > 0 {
			out = append(out, &asset)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveTenantIDs returns the ids of all enabled tenants
func (s *KVStore) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.forEach(ctx, s.tenants, func(data []byte) error {
		var tenant types.Tenant
		if err := json.Unmarshal(data, &tenant); err != nil {
			s.logger.Warn("Skipping undecodable tenant entry", "error", err)
			return nil
		}
		if tenant.Enabled {
			out = append(out, tenant.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *KVStore) get(ctx context.Context, bucket jetstream.KeyValue, key string, entity any) error {
	entry, err := bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		return errors.WrapTransient(err, "KVStore", "get", fmt.Sprintf("load %s", key))
	}
	if err := json.Unmarshal(entry.Value(), entity); err != nil {
		return errors.WrapInvalid(err, "KVStore", "get", fmt.Sprintf("decode %s", key))
	}
	return nil
}

func (s *KVStore) forEach(ctx context.Context, bucket jetstream.KeyValue, fn func(data []byte) error) error {
	lister, err := bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil
		}
		return errors.WrapTransient(err, "KVStore", "forEach", "list keys")
	}
	defer func() { _ = lister.Stop() }()

	for key := range lister.Keys() {
		entry, err := bucket.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrKeyNotFound) {
				continue // deleted between list and get
			}
			return errors.WrapTransient(err, "KVStore", "forEach", fmt.Sprintf("load %s", key))
		}
		if err := fn(entry.Value()); err != nil {
			return err
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
