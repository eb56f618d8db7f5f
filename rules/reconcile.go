package rules

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/types"
)

// ChangedPropertyAttributes is the changed-property name under which the
// persistence layer reports attribute collection changes on an asset.
const ChangedPropertyAttributes = "attributes"

// ProcessRulesetChange reconciles a ruleset change notification. Deletion and
// disablement undeploy the ruleset; anything else deploys it, seeding the
// deployment from the fact index when the scope had none. Asset-scoped
// rulesets are reloaded from storage first because the notification payload
// may be partially populated.
//
// Reconciliation is idempotent; the change feed delivers at least once.
func (s *Service) ProcessRulesetChange(ctx context.Context, ruleset *types.Ruleset, cause types.ChangeCause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.recordReconcile("ruleset", string(cause))

	if cause == types.CauseDelete || !ruleset.Enabled {
		s.logger.Info("Undeploying ruleset",
			"ruleset", ruleset.ID, "cause", string(cause), "enabled", ruleset.Enabled)
		err := s.registry.undeploy(ruleset)
		global, tenants, assets := s.registry.counts()
		s.metrics.recordDeployments(global, tenants, assets)
		return err
	}

	target := ruleset
	if ruleset.Scope == types.ScopeAsset {
		reloaded, err := s.rulesets.FindEnabledAssetRuleset(ctx, ruleset.ID)
		if stderrors.Is(err, errors.ErrNotFound) {
			// Gone or disabled between notification and reload
			s.logger.Info("Asset ruleset no longer enabled, undeploying", "ruleset", ruleset.ID)
			return s.registry.undeploy(ruleset)
		}
		if err != nil {
			return errors.Wrap(err, "Service", "ProcessRulesetChange",
				fmt.Sprintf("reload ruleset %s", ruleset.ID))
		}
		target = reloaded
	}

	s.logger.Info("Deploying ruleset",
		"ruleset", target.ID, "scope", target.Scope.String(), "version", target.Version)
	return s.deployAndSeedLocked(target)
}

// ProcessTenantChange reconciles a tenant change notification by comparing
// the tenant's previous effective enablement with the new one. Disablement
// cascades: the tenant deployment and every asset deployment under the realm
// are torn down together.
func (s *Service) ProcessTenantChange(ctx context.Context, tenant *types.Tenant, cause types.ChangeCause) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.recordReconcile("tenant", string(cause))

	wasEnabled := slices.Contains(s.activeTenants, tenant.ID)
	isEnabled := tenant.Enabled && cause != types.CauseDelete

	s.refreshActiveTenantsLocked(ctx, tenant.ID, isEnabled)

	if wasEnabled == isEnabled {
		return nil
	}

	if !isEnabled {
		s.logger.Info("Tenant disabled, tearing down deployments", "realm", tenant.ID)
		s.registry.removeAllForTenant(tenant.ID)
		global, tenants, assets := s.registry.counts()
		s.metrics.recordDeployments(global, tenants, assets)
		return nil
	}

	s.logger.Info("Tenant enabled, deploying rulesets", "realm", tenant.ID)

	tenantRulesets, err := s.rulesets.FindEnabledTenant(ctx, tenant.ID)
	if err != nil {
		return errors.Wrap(err, "Service", "ProcessTenantChange",
			fmt.Sprintf("load tenant rulesets for %s", tenant.ID))
	}
	for _, rs := range tenantRulesets {
		if deployErr := s.deployAndSeedLocked(rs); deployErr != nil {
			s.logger.Error("Tenant ruleset deploy failed", "ruleset", rs.ID, "error", deployErr)
		}
	}

	assetRulesets, err := s.rulesets.FindEnabledAsset(ctx, tenant.ID)
	if err != nil {
		return errors.Wrap(err, "Service", "ProcessTenantChange",
			fmt.Sprintf("load asset rulesets for %s", tenant.ID))
	}
	s.deployAssetRulesetsLocked(ctx, assetRulesets)

	return nil
}

// refreshActiveTenantsLocked reloads tenant enablement from the identity
// provider, falling back to a local adjustment when the provider is
// unreachable so reconciliation can still make progress.
func (s *Service) refreshActiveTenantsLocked(ctx context.Context, tenantID string, enabled bool) {
	active, err := s.identity.ActiveTenantIDs(ctx)
	if err == nil {
		s.activeTenants = active
		return
	}

	s.logger.Warn("Active tenant refresh failed, adjusting locally",
		"realm", tenantID, "error", err)
	if enabled {
		if !slices.Contains(s.activeTenants, tenantID) {
			s.activeTenants = append(s.activeTenants, tenantID)
		}
		return
	}
	s.activeTenants = slices.DeleteFunc(slices.Clone(s.activeTenants), func(id string) bool {
		return id == tenantID
	})
}

// ProcessAssetChange reconciles an asset change notification, acting only on
// attributes flagged as rule state. INSERT and UPDATE reload the asset from
// storage before building facts; DELETE works from the notification snapshot
// since the asset no longer exists to reload.
func (s *Service) ProcessAssetChange(ctx context.Context, change *types.ChangeNotification) error {
	if change.Asset == nil {
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Service", "ProcessAssetChange", "notification without asset")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.recordReconcile("asset", string(change.Cause))

	switch change.Cause {
	case types.CauseInsert:
		return s.assetInsertedLocked(ctx, change.Asset.ID)
	case types.CauseUpdate:
		return s.assetUpdatedLocked(ctx, change)
	case types.CauseDelete:
		return s.assetDeletedLocked(change.Asset)
	default:
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Service", "ProcessAssetChange", fmt.Sprintf("unknown cause %q", change.Cause))
	}
}

func (s *Service) assetInsertedLocked(ctx context.Context, assetID string) error {
	asset, err := s.assets.Find(ctx, assetID, true)
	if err != nil {
		return errors.Wrap(err, "Service", "ProcessAssetChange",
			fmt.Sprintf("load inserted asset %s", assetID))
	}

	for _, attr := range asset.RuleStateAttributes() {
		state := types.NewAssetState(asset, attr)
		state.Status = types.StatusCompleted
		// Initial seeding must not be blocked by an errored deployment
		if dispatchErr := s.updateAssetStateLocked(state, true); dispatchErr != nil {
			s.logger.Warn("Inserted asset fact dispatch failed",
				"ref", state.Ref.String(), "error", dispatchErr)
		}
	}
	return nil
}

func (s *Service) assetUpdatedLocked(ctx context.Context, change *types.ChangeNotification) error {
	if !slices.Contains(change.ChangedProperties, ChangedPropertyAttributes) {
		return nil
	}

	asset, err := s.assets.Find(ctx, change.Asset.ID, true)
	if err != nil {
		return errors.Wrap(err, "Service", "ProcessAssetChange",
			fmt.Sprintf("load updated asset %s", change.Asset.ID))
	}

	previous := ruleStateOf(change.PreviousAttributes)
	current := ruleStateOf(change.CurrentAttributes)

	// Attributes unchanged in value stay untouched; timestamps are ignored
	// by the comparison so a pure timestamp refresh produces no churn.
	for _, attr := range previous {
		if !containsValueEqual(current, attr) {
			if retractErr := s.retractAssetStateLocked(types.NewAssetState(asset, attr)); retractErr != nil {
				s.logger.Warn("Updated asset fact retraction failed",
					"asset", asset.ID, "attribute", attr.Name, "error", retractErr)
			}
		}
	}
	for _, attr := range current {
		if !containsValueEqual(previous, attr) {
			state := types.NewAssetState(asset, attr)
			state.Status = types.StatusCompleted
			if dispatchErr := s.updateAssetStateLocked(state, true); dispatchErr != nil {
				s.logger.Warn("Updated asset fact dispatch failed",
					"ref", state.Ref.String(), "error", dispatchErr)
			}
		}
	}
	return nil
}

// assetDeletedLocked retracts the deleted asset's facts using its
// pre-deletion path; there is nothing left in storage to reload.
func (s *Service) assetDeletedLocked(asset *types.Asset) error {
	for _, attr := range asset.RuleStateAttributes() {
		if retractErr := s.retractAssetStateLocked(types.NewAssetState(asset, attr)); retractErr != nil {
			s.logger.Warn("Deleted asset fact retraction failed",
				"asset", asset.ID, "attribute", attr.Name, "error", retractErr)
		}
	}
	return nil
}

func ruleStateOf(attrs []types.Attribute) []types.Attribute {
	var out []types.Attribute
	for _, attr := range attrs {
		if attr.RuleState {
			out = append(out, attr)
		}
	}
	return out
}

func containsValueEqual(attrs []types.Attribute, attr types.Attribute) bool {
	for _, candidate := range attrs {
		if candidate.ValueEquals(attr) {
			return true
		}
	}
	return false
}
