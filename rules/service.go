package rules

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/health"
	"github.com/c360/rulescope/metric"
	"github.com/c360/rulescope/storage"
	"github.com/c360/rulescope/types"
)

// Service is the orchestrator. It owns the deployment registry and the fact
// index, and is the single entry point for fact dispatch and change
// reconciliation.
//
// All mutable orchestration state lives behind one mutex: chain resolution,
// index updates and deployment lifecycle are a single critical section, so a
// fact can never be routed into a deployment that is concurrently being torn
// down and a new deployment's seed replay sees a stable index snapshot.
// Engine calls happen under the lock, but only the call itself; engines do
// their real work on their own time.
type Service struct {
	config   *Config
	rulesets storage.RulesetStore
	assets   storage.AssetStore
	identity storage.IdentityProvider

	mu            sync.Mutex
	registry      *registry
	index         *factIndex
	activeTenants []string

	defaultExpires time.Duration
	metrics        *rulesMetrics
	logger         *slog.Logger

	initialized bool
	started     atomic.Bool

	// stopMu guards stopDone, which is the completion signal of the
	// in-flight teardown so a timed-out Stop can be retried.
	stopMu   sync.Mutex
	stopDone chan struct{}
}

// NewService creates the orchestrator. metricsRegistry may be nil to run
// without metrics.
func NewService(
	config *Config,
	factory EngineFactory,
	rulesetStore storage.RulesetStore,
	assetStore storage.AssetStore,
	identity storage.IdentityProvider,
	metricsRegistry *metric.MetricsRegistry,
) (*Service, error) {
	if config == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Service", "NewService", "config")
	}
	if factory == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Service", "NewService", "engine factory")
	}
	if rulesetStore == nil || assetStore == nil || identity == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Service", "NewService", "storage collaborators")
	}

	metrics, err := newRulesMetrics(metricsRegistry)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:   config,
		rulesets: rulesetStore,
		assets:   assetStore,
		identity: identity,
		registry: newRegistry(factory),
		index:    newFactIndex(),
		metrics:  metrics,
		logger:   slog.Default().With("component", "rules-service"),
	}, nil
}

// Initialize validates configuration and prepares the service for Start.
func (s *Service) Initialize() error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	expires, err := ParseExpires(s.config.EventExpires)
	if err != nil {
		return errors.WrapInvalid(err, "Service", "Initialize", "default event expiry")
	}
	s.defaultExpires = expires

	s.initialized = true
	s.logger.Info("Service initialized", "defaultEventExpires", s.config.EventExpires)
	return nil
}

// Start performs the startup replay: it deploys every enabled ruleset whose
// tenant is active, then seeds all deployments with a completed state fact
// for every rule-relevant attribute in storage. Live traffic dispatched after
// Start returns sees a fully populated registry and index.
func (s *Service) Start(ctx context.Context) error {
	if !s.initialized {
		return errors.ErrNotStarted
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.replayLocked(ctx); err != nil {
		s.started.Store(false)
		return err
	}

	global, tenants, assets := s.registry.counts()
	s.metrics.recordDeployments(global, tenants, assets)
	s.logger.Info("Service started",
		"globalDeployments", global,
		"tenantDeployments", tenants,
		"assetDeployments", assets,
		"factsIndexed", s.index.len())
	return nil
}

// Stop tears down every deployment. The timeout bounds how long Stop waits
// for engine shutdown; on timeout the teardown keeps running in the
// background (it holds the service mutex until it finishes), and a retried
// Stop waits on that same teardown rather than starting another.
func (s *Service) Stop(timeout time.Duration) error {
	s.stopMu.Lock()
	if s.started.CompareAndSwap(true, false) {
		done := make(chan struct{})
		s.stopDone = done
		go func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.registry.stopAll()
			close(done)
		}()
	}
	done := s.stopDone
	s.stopMu.Unlock()

	if done == nil {
		return errors.ErrNotStarted
	}

	select {
	case <-done:
		s.metrics.recordDeployments(0, 0, 0)
		s.logger.Info("Service stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("deployment shutdown exceeded %v", timeout),
			"Service", "Stop", "stop deployments")
	}
}

// Accept is the ingestion entrypoint for the upstream attribute pipeline.
// Attribute envelopes are classified here; the other kinds carry facts the
// publisher already classified.
func (s *Service) Accept(envelope *types.FactEnvelope) error {
	switch envelope.Kind {
	case types.FactAttribute:
		if envelope.Attribute == nil {
			return errors.WrapInvalid(errors.ErrInvalidData,
				"Service", "Accept", "attribute envelope without attribute update")
		}
		return s.AcceptAttribute(envelope.Attribute)
	case types.FactState:
		if envelope.State == nil {
			return errors.WrapInvalid(errors.ErrInvalidData,
				"Service", "Accept", "state envelope without state fact")
		}
		return s.UpdateAssetState(envelope.State, false)
	case types.FactRetract:
		if envelope.State == nil {
			return errors.WrapInvalid(errors.ErrInvalidData,
				"Service", "Accept", "retract envelope without state fact")
		}
		return s.RetractAssetState(envelope.State)
	case types.FactEvent:
		if envelope.Event == nil {
			return errors.WrapInvalid(errors.ErrInvalidData,
				"Service", "Accept", "event envelope without event fact")
		}
		return s.ProcessEvent(envelope.Event)
	default:
		return errors.WrapInvalid(errors.ErrInvalidData,
			"Service", "Accept", fmt.Sprintf("unknown fact kind %q", envelope.Kind))
	}
}

// AcceptAttribute classifies a raw attribute write. Rule-state attributes
// become state facts, updated or retracted when the write is a deletion.
// Rule-event attributes produce a transient event fact, expiring per the
// attribute's own override when it carries one. An attribute may be flagged
// both ways; one flagged neither way is not rule-relevant and is dropped.
func (s *Service) AcceptAttribute(update *types.AttributeUpdate) error {
	attr := update.Attribute
	if !attr.RuleState && !attr.RuleEvent {
		s.logger.Debug("Ignoring non-rule-relevant attribute",
			"asset", update.AssetID, "attribute", attr.Name)
		return nil
	}

	var firstErr error
	if attr.RuleState {
		state := update.StateFact()
		if update.Deleted {
			firstErr = s.RetractAssetState(state)
		} else {
			firstErr = s.UpdateAssetState(state, false)
		}
	}

	if attr.RuleEvent && !update.Deleted {
		event := types.NewAssetEvent(update.StateFact(), attr.EventExpires)
		if err := s.ProcessEvent(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UpdateAssetState dispatches a state fact: resolves the scope chain, checks
// deployment health, supersedes the fact in the index and forwards it to each
// deployment in chain order. skipHealthCheck is used by seeding paths that
// must not be blocked by an errored deployment.
func (s *Service) UpdateAssetState(state *types.AssetState, skipHealthCheck bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAssetStateLocked(state, skipHealthCheck)
}

func (s *Service) updateAssetStateLocked(state *types.AssetState, skipHealthCheck bool) error {
	start := time.Now()
	chain := s.registry.chainFor(state.RealmID, state.Path)

	if !skipHealthCheck {
		// All-or-nothing: one errored deployment in the chain blocks the
		// whole update. Partial application across scope levels would leave
		// the hierarchy evaluating inconsistent state.
		for _, dep := range chain {
			if dep.IsError() {
				state.Status = types.StatusError
				state.Error = dep.Error().Error()
				s.metrics.recordDispatch("update", "rejected", time.Since(start))
				return errors.Wrap(errors.ErrDeploymentErrored, "Service", "UpdateAssetState",
					fmt.Sprintf("deployment %s is errored", dep.Scope()))
			}
		}
	}

	s.index.upsert(state)
	s.metrics.recordFacts(s.index.len())

	if len(chain) == 0 {
		s.logger.Debug("No deployments in scope for state fact", "ref", state.Ref.String())
		s.metrics.recordDispatch("update", "no_scope", time.Since(start))
		return nil
	}

	var firstErr error
	for _, dep := range chain {
		if err := dep.UpdateFact(state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		state.Status = types.StatusError
		state.Error = firstErr.Error()
		s.metrics.recordDispatch("update", "error", time.Since(start))
		return firstErr
	}

	state.Status = types.StatusCompleted
	s.metrics.recordDispatch("update", "ok", time.Since(start))
	return nil
}

// RetractAssetState removes a state fact from the index and from every
// deployment in its scope chain. Retraction ignores deployment health: it is
// the mechanism that clears bad state out of an errored engine.
func (s *Service) RetractAssetState(state *types.AssetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retractAssetStateLocked(state)
}

func (s *Service) retractAssetStateLocked(state *types.AssetState) error {
	start := time.Now()

	s.index.remove(state)
	s.metrics.recordFacts(s.index.len())

	chain := s.registry.chainFor(state.RealmID, state.Path)
	var firstErr error
	for _, dep := range chain {
		if err := dep.RetractFact(state); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		s.metrics.recordDispatch("retract", "error", time.Since(start))
		return firstErr
	}
	s.metrics.recordDispatch("retract", "ok", time.Since(start))
	return nil
}

// ProcessEvent dispatches a transient event fact with its expiration offset.
// Events are lost, not queued, when a deployment in scope is errored or the
// expiry cannot be parsed.
func (s *Service) ProcessEvent(event *types.AssetEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processEventLocked(event)
}

func (s *Service) processEventLocked(event *types.AssetEvent) error {
	start := time.Now()
	chain := s.registry.chainFor(event.State.RealmID, event.State.Path)

	if len(chain) == 0 {
		s.logger.Debug("No deployments in scope for event fact", "event", event.ID)
		s.metrics.recordDispatch("event", "no_scope", time.Since(start))
		return nil
	}

	for _, dep := range chain {
		if dep.IsError() {
			s.logger.Warn("Event lost, deployment in scope is errored",
				"event", event.ID, "scope", dep.Scope().String())
			s.metrics.recordDispatch("event", "rejected", time.Since(start))
			return errors.Wrap(errors.ErrDeploymentErrored, "Service", "ProcessEvent",
				fmt.Sprintf("deployment %s is errored", dep.Scope()))
		}
	}

	expiration := s.defaultExpires
	if event.Expires != "" {
		parsed, err := ParseExpires(event.Expires)
		if err != nil {
			s.metrics.recordDispatch("event", "invalid", time.Since(start))
			return errors.WrapInvalid(err, "Service", "ProcessEvent",
				fmt.Sprintf("event %s expiry %q", event.ID, event.Expires))
		}
		expiration = parsed
	}

	var firstErr error
	for _, dep := range chain {
		if err := dep.InsertEvent(expiration, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		s.metrics.recordDispatch("event", "error", time.Since(start))
		return firstErr
	}
	s.metrics.recordDispatch("event", "ok", time.Since(start))
	return nil
}

// DeploymentCounts reports live deployments per scope level.
func (s *Service) DeploymentCounts() (global, tenants, assets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.counts()
}

// FactCount reports the number of state facts currently indexed.
func (s *Service) FactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.len()
}

// DeploymentHealth returns whether the scope has a live deployment and, if
// so, its error state.
func (s *Service) DeploymentHealth(key types.ScopeKey) (exists bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dep := s.registry.get(key)
	if dep == nil {
		return false, nil
	}
	return true, dep.Error()
}

// Health reports the aggregate health of the orchestrator: one sub-status per
// live deployment. An errored deployment makes the service unhealthy since it
// blocks every update in its scope.
func (s *Service) Health() health.Status {
	if !s.started.Load() {
		return health.NewUnhealthy("rules-service", "service not started")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deps := s.registry.all()
	subs := make([]health.Status, 0, len(deps))
	for _, dep := range deps {
		name := "deployment:" + dep.Scope().String()
		if dep.IsError() {
			subs = append(subs, health.NewUnhealthy(name, dep.Error().Error()))
		} else {
			subs = append(subs, health.NewHealthy(name,
				fmt.Sprintf("%d rulesets loaded", len(dep.RulesetIDs()))))
		}
	}
	return health.Aggregate("rules-service", subs)
}

// replayLocked performs the startup replay described on Start.
func (s *Service) replayLocked(ctx context.Context) error {
	globals, err := s.rulesets.FindEnabledGlobal(ctx)
	if err != nil {
		return errors.Wrap(err, "Service", "Start", "load global rulesets")
	}
	for _, rs := range globals {
		if deployErr := s.deployAndSeedLocked(rs); deployErr != nil {
			s.logger.Error("Global ruleset deploy failed", "ruleset", rs.ID, "error", deployErr)
		}
	}

	active, err := s.identity.ActiveTenantIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "Service", "Start", "load active tenants")
	}
	s.activeTenants = active

	if len(active) > 0 {
		tenantRulesets, loadErr := s.rulesets.FindEnabledTenant(ctx, active...)
		if loadErr != nil {
			return errors.Wrap(loadErr, "Service", "Start", "load tenant rulesets")
		}
		for _, rs := range tenantRulesets {
			if deployErr := s.deployAndSeedLocked(rs); deployErr != nil {
				s.logger.Error("Tenant ruleset deploy failed", "ruleset", rs.ID, "error", deployErr)
			}
		}

		assetRulesets, loadErr := s.rulesets.FindEnabledAsset(ctx, active...)
		if loadErr != nil {
			return errors.Wrap(loadErr, "Service", "Start", "load asset rulesets")
		}
		s.deployAssetRulesetsLocked(ctx, assetRulesets)
	}

	seedAssets, err := s.assets.FindRuleStateAssets(ctx)
	if err != nil {
		return errors.Wrap(err, "Service", "Start", "load rule state assets")
	}
	for _, asset := range seedAssets {
		for _, attr := range asset.RuleStateAttributes() {
			state := types.NewAssetState(asset, attr)
			state.Status = types.StatusCompleted
			if dispatchErr := s.updateAssetStateLocked(state, true); dispatchErr != nil {
				s.logger.Warn("Startup fact seed failed",
					"ref", state.Ref.String(), "error", dispatchErr)
			}
		}
	}

	return nil
}

// deployAndSeedLocked loads a ruleset into its scope's deployment. A newly
// created deployment is replayed with every indexed fact in its scope so it
// starts from the same working memory a long-running one would have.
func (s *Service) deployAndSeedLocked(ruleset *types.Ruleset) error {
	dep, created, err := s.registry.deploy(ruleset)
	if err != nil {
		return err
	}

	if created {
		for _, state := range s.index.inScope(dep.Scope()) {
			if seedErr := dep.UpdateFact(state); seedErr != nil {
				s.logger.Warn("Seed replay failed",
					"scope", dep.Scope().String(), "ref", state.Ref.String(), "error", seedErr)
			}
		}
	}

	global, tenants, assets := s.registry.counts()
	s.metrics.recordDeployments(global, tenants, assets)
	return nil
}

// deployAssetRulesetsLocked deploys asset-scoped rulesets grouped per asset,
// one deployment per asset, skipping assets that cannot be loaded or whose
// tenant is not active.
func (s *Service) deployAssetRulesetsLocked(ctx context.Context, rulesets []*types.Ruleset) {
	grouped := make(map[string][]*types.Ruleset)
	for _, rs := range rulesets {
		grouped[rs.AssetID] = append(grouped[rs.AssetID], rs)
	}

	for assetID, group := range grouped {
		asset, err := s.assets.Find(ctx, assetID, true)
		if err != nil {
			s.logger.Warn("Skipping rulesets for unloadable asset",
				"asset", assetID, "error", err)
			continue
		}
		if !slices.Contains(s.activeTenants, asset.RealmID) {
			s.logger.Debug("Skipping rulesets for inactive tenant's asset",
				"asset", assetID, "realm", asset.RealmID)
			continue
		}
		for _, rs := range group {
			if deployErr := s.deployAndSeedLocked(rs); deployErr != nil {
				s.logger.Error("Asset ruleset deploy failed", "ruleset", rs.ID, "error", deployErr)
			}
		}
	}
}
