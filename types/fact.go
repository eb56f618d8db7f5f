package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ProcessingStatus tracks a state fact's progress through dispatch.
type ProcessingStatus int

const (
	// StatusPending indicates the fact has not yet been routed
	StatusPending ProcessingStatus = iota
	// StatusCompleted indicates the fact was forwarded to every deployment in scope
	StatusCompleted
	// StatusError indicates dispatch was rejected by an errored deployment
	StatusError
)

// String returns the string representation of ProcessingStatus
func (s ProcessingStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// AssetState is a state fact: the current value of one rule-relevant asset
// attribute. A new state fact for the same attribute reference supersedes the
// prior one everywhere it was routed.
type AssetState struct {
	Ref       AttributeRef    `json:"ref"`
	RealmID   string          `json:"realmId"`
	Path      []string        `json:"path,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`

	Status ProcessingStatus `json:"status"`
	Error  string           `json:"error,omitempty"`
}

// NewAssetState builds a pending state fact from an asset and one of its
// attributes.
func NewAssetState(asset *Asset, attr Attribute) *AssetState {
	return &AssetState{
		Ref:       AttributeRef{AssetID: asset.ID, Name: attr.Name},
		RealmID:   asset.RealmID,
		Path:      asset.Path,
		Value:     attr.Value,
		Timestamp: attr.Timestamp,
		Status:    StatusPending,
	}
}

// Equals reports full identity equality: same attribute reference, value and
// timestamp.
func (s *AssetState) Equals(other *AssetState) bool {
	return s.Ref == other.Ref &&
		s.Timestamp == other.Timestamp &&
		bytes.Equal(s.Value, other.Value)
}

// RefEquals reports attribute-reference equivalence, the fallback match used
// when identity equality fails because a caller reconstructed the fact.
func (s *AssetState) RefEquals(other *AssetState) bool {
	return s.Ref == other.Ref
}

// String returns a compact representation for logging
func (s *AssetState) String() string {
	return fmt.Sprintf("AssetState{ref=%s, realm=%s, status=%s}", s.Ref, s.RealmID, s.Status)
}

// AssetEvent is a transient, non-superseding fact derived from a state fact.
// Events are inserted with an expiry after which the evaluation runtime
// discards them autonomously; they are never retracted by the orchestrator.
type AssetEvent struct {
	ID    string     `json:"id"`
	State AssetState `json:"state"`

	// Expires optionally overrides the configured default expiry,
	// e.g. "10s", "30m", "1h".
	Expires string `json:"expires,omitempty"`
}

// NewAssetEvent derives an event fact from a state fact.
func NewAssetEvent(state *AssetState, expires string) *AssetEvent {
	return &AssetEvent{
		ID:      uuid.NewString(),
		State:   *state,
		Expires: expires,
	}
}

// String returns a compact representation for logging
func (e *AssetEvent) String() string {
	return fmt.Sprintf("AssetEvent{id=%s, ref=%s}", e.ID, e.State.Ref)
}

// AttributeUpdate is a raw attribute write published by the upstream
// processing pipeline, before classification into facts. Deleted marks the
// removal of the attribute rather than a value change.
type AttributeUpdate struct {
	AssetID   string    `json:"assetId"`
	RealmID   string    `json:"realmId"`
	Path      []string  `json:"path,omitempty"`
	Attribute Attribute `json:"attribute"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// StateFact builds the pending state fact for the update's attribute.
func (u *AttributeUpdate) StateFact() *AssetState {
	return &AssetState{
		Ref:       AttributeRef{AssetID: u.AssetID, Name: u.Attribute.Name},
		RealmID:   u.RealmID,
		Path:      u.Path,
		Value:     u.Attribute.Value,
		Timestamp: u.Attribute.Timestamp,
		Status:    StatusPending,
	}
}

// FactKind classifies an ingested fact envelope.
type FactKind string

// Fact envelope kinds
const (
	FactAttribute FactKind = "attribute"
	FactState     FactKind = "state"
	FactRetract   FactKind = "retract"
	FactEvent     FactKind = "event"
)

// FactEnvelope is the wire format accepted by the ingestion entrypoint.
// Attribute envelopes ("attribute") carry an unclassified write whose routing
// follows the attribute's rule-state / rule-event flags. The remaining kinds
// carry pre-classified facts: state facts route through update ("state") or
// retract ("retract"), event facts through insert-with-expiry ("event").
type FactEnvelope struct {
	Kind      FactKind         `json:"kind"`
	Attribute *AttributeUpdate `json:"attribute,omitempty"`
	State     *AssetState      `json:"state,omitempty"`
	Event     *AssetEvent      `json:"event,omitempty"`
}
