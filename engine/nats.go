package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/rulescope/errors"
	"github.com/c360/rulescope/natsclient"
	"github.com/c360/rulescope/rules"
	"github.com/c360/rulescope/types"
)

// Op names on the engine operation subjects
const (
	OpAddRuleset    = "add_ruleset"
	OpRemoveRuleset = "remove_ruleset"
	OpUpdateFact    = "update_fact"
	OpRetractFact   = "retract_fact"
	OpInsertEvent   = "insert_event"
	OpStop          = "stop"
)

// Operation is the wire format published to evaluation runtimes. Exactly one
// payload field is set depending on Op.
type Operation struct {
	Op    string         `json:"op"`
	Scope types.ScopeKey `json:"scope"`

	Ruleset *types.Ruleset    `json:"ruleset,omitempty"`
	State   *types.AssetState `json:"state,omitempty"`
	Event   *types.AssetEvent `json:"event,omitempty"`

	// ExpiresMS carries the event expiration offset in milliseconds.
	ExpiresMS int64 `json:"expiresMs,omitempty"`
}

// NATS is an Engine that publishes operations to a per-scope NATS subject
// where an external evaluation runtime consumes them. The orchestrator sees a
// publish failure as an engine error, which marks the deployment errored.
type NATS struct {
	client  *natsclient.Client
	subject string
	scope   types.ScopeKey
	logger  *slog.Logger
}

var _ rules.Engine = (*NATS)(nil)

// NewNATSFactory returns an EngineFactory producing NATS engines under the
// given subject prefix.
func NewNATSFactory(client *natsclient.Client, subjectPrefix string) rules.EngineFactory {
	return func(scope types.ScopeKey) (rules.Engine, error) {
		return NewNATS(client, subjectPrefix, scope), nil
	}
}

// NewNATS creates a NATS engine for one scope.
func NewNATS(client *natsclient.Client, subjectPrefix string, scope types.ScopeKey) *NATS {
	return &NATS{
		client:  client,
		subject: SubjectFor(subjectPrefix, scope),
		scope:   scope,
		logger: slog.Default().With(
			"component", "nats-engine",
			"scope", scope.String(),
		),
	}
}

// SubjectFor builds the operation subject for a scope:
// <prefix>.global, <prefix>.tenant.<realmID> or <prefix>.asset.<assetID>.
func SubjectFor(prefix string, scope types.ScopeKey) string {
	if scope.Kind == types.ScopeGlobal {
		return fmt.Sprintf("%s.global", prefix)
	}
	return fmt.Sprintf("%s.%s.%s", prefix, scope.Kind, scope.ID)
}

// Subject returns the subject this engine publishes on.
func (e *NATS) Subject() string {
	return e.subject
}

// AddRuleset publishes a ruleset load operation.
func (e *NATS) AddRuleset(ruleset *types.Ruleset) error {
	return e.publish(Operation{Op: OpAddRuleset, Scope: e.scope, Ruleset: ruleset})
}

// RemoveRuleset publishes a ruleset unload operation.
func (e *NATS) RemoveRuleset(ruleset *types.Ruleset) error {
	return e.publish(Operation{Op: OpRemoveRuleset, Scope: e.scope, Ruleset: ruleset})
}

// UpdateFact publishes a state fact insert-or-replace.
func (e *NATS) UpdateFact(state *types.AssetState) error {
	return e.publish(Operation{Op: OpUpdateFact, Scope: e.scope, State: state})
}

// RetractFact publishes a state fact retraction.
func (e *NATS) RetractFact(state *types.AssetState) error {
	return e.publish(Operation{Op: OpRetractFact, Scope: e.scope, State: state})
}

// InsertEvent publishes an event fact with its expiration offset.
func (e *NATS) InsertEvent(expiration time.Duration, event *types.AssetEvent) error {
	return e.publish(Operation{
		Op:        OpInsertEvent,
		Scope:     e.scope,
		Event:     event,
		ExpiresMS: expiration.Milliseconds(),
	})
}

// Stop tells the runtime to release the scope. Publish failures on stop are
// logged, not returned: the deployment is going away either way and the
// runtime notices the silence.
func (e *NATS) Stop() error {
	if err := e.publish(Operation{Op: OpStop, Scope: e.scope}); err != nil {
		e.logger.Warn("Stop publish failed", "error", err)
	}
	return nil
}

func (e *NATS) publish(op Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return errors.WrapInvalid(err, "NATS", "publish", "marshal operation")
	}
	if err := e.client.Publish(context.Background(), e.subject, data); err != nil {
		return errors.WrapTransient(err, "NATS", "publish",
			fmt.Sprintf("publish %s to %s", op.Op, e.subject))
	}
	return nil
}
