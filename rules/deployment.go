package rules

import (
	"log/slog"
	"time"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/types"
)

// Deployment is one live scope slot: the engine serving that scope plus the
// rulesets currently loaded into it. A deployment exists only while it holds
// at least one enabled ruleset.
//
// Deployments carry no locking of their own; the owning service serializes
// all access.
type Deployment struct {
	scope    types.ScopeKey
	engine   Engine
	rulesets map[string]*types.Ruleset
	err      error
	logger   *slog.Logger
}

func newDeployment(scope types.ScopeKey, engine Engine) *Deployment {
	return &Deployment{
		scope:    scope,
		engine:   engine,
		rulesets: make(map[string]*types.Ruleset),
		logger: slog.Default().With(
			"component", "deployment",
			"scope", scope.String(),
		),
	}
}

// Scope returns the scope this deployment serves.
func (d *Deployment) Scope() types.ScopeKey {
	return d.scope
}

// IsEmpty reports whether the deployment holds no rulesets.
func (d *Deployment) IsEmpty() bool {
	return len(d.rulesets) == 0
}

// IsError reports whether any engine operation has failed since the
// deployment was built. An errored deployment blocks state and event dispatch
// for every scope chain it appears in until it is rebuilt.
func (d *Deployment) IsError() bool {
	return d.err != nil
}

// Error returns the first engine failure, or nil.
func (d *Deployment) Error() error {
	return d.err
}

// RulesetIDs returns the ids of the rulesets currently loaded.
func (d *Deployment) RulesetIDs() []string {
	ids := make([]string, 0, len(d.rulesets))
	for id := range d.rulesets {
		ids = append(ids, id)
	}
	return ids
}

// Rulesets returns the rulesets currently loaded.
func (d *Deployment) Rulesets() []*types.Ruleset {
	out := make([]*types.Ruleset, 0, len(d.rulesets))
	for _, rs := range d.rulesets {
		out = append(out, rs)
	}
	return out
}

// AddRuleset loads or replaces a ruleset in the engine. Replacement clears a
// prior error state so a fixed ruleset version can recover the deployment.
func (d *Deployment) AddRuleset(ruleset *types.Ruleset) error {
	if err := d.engine.AddRuleset(ruleset); err != nil {
		d.err = errors.Wrap(err, "Deployment", "AddRuleset", ruleset.ID)
		d.logger.Error("Ruleset deploy failed", "ruleset", ruleset.ID, "error", err)
		d.rulesets[ruleset.ID] = ruleset
		return d.err
	}

	d.rulesets[ruleset.ID] = ruleset
	d.err = nil
	d.logger.Debug("Ruleset deployed", "ruleset", ruleset.ID, "version", ruleset.Version)
	return nil
}

// RemoveRuleset unloads a ruleset. Returns whether the deployment is now
// empty and should be discarded.
func (d *Deployment) RemoveRuleset(ruleset *types.Ruleset) (empty bool, err error) {
	if _, ok := d.rulesets[ruleset.ID]; !ok {
		return d.IsEmpty(), nil
	}

	delete(d.rulesets, ruleset.ID)
	if engineErr := d.engine.RemoveRuleset(ruleset); engineErr != nil {
		d.err = errors.Wrap(engineErr, "Deployment", "RemoveRuleset", ruleset.ID)
		d.logger.Error("Ruleset undeploy failed", "ruleset", ruleset.ID, "error", engineErr)
		return d.IsEmpty(), d.err
	}

	d.logger.Debug("Ruleset undeployed", "ruleset", ruleset.ID)
	return d.IsEmpty(), nil
}

// UpdateFact forwards a state fact to the engine.
func (d *Deployment) UpdateFact(state *types.AssetState) error {
	if err := d.engine.UpdateFact(state); err != nil {
		d.err = errors.Wrap(err, "Deployment", "UpdateFact", state.Ref.String())
		d.logger.Error("Fact update failed", "ref", state.Ref.String(), "error", err)
		return d.err
	}
	return nil
}

// RetractFact forwards a state fact retraction to the engine.
func (d *Deployment) RetractFact(state *types.AssetState) error {
	if err := d.engine.RetractFact(state); err != nil {
		d.err = errors.Wrap(err, "Deployment", "RetractFact", state.Ref.String())
		d.logger.Error("Fact retraction failed", "ref", state.Ref.String(), "error", err)
		return d.err
	}
	return nil
}

// InsertEvent forwards an event fact with its expiration offset to the engine.
func (d *Deployment) InsertEvent(expiration time.Duration, event *types.AssetEvent) error {
	if err := d.engine.InsertEvent(expiration, event); err != nil {
		d.err = errors.Wrap(err, "Deployment", "InsertEvent", event.ID)
		d.logger.Error("Event insert failed", "event", event.ID, "error", err)
		return d.err
	}
	return nil
}

// Stop releases the engine.
func (d *Deployment) Stop() error {
	if err := d.engine.Stop(); err != nil {
		d.logger.Error("Engine stop failed", "error", err)
		return errors.Wrap(err, "Deployment", "Stop", "stop engine")
	}
	d.logger.Debug("Deployment stopped")
	return nil
}
