package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Attribute is a single named value on an asset. Attributes flagged RuleState
// are visible to rule deployments as state facts; attributes flagged
// RuleEvent produce transient event facts instead.
type Attribute struct {
	Name      string          `json:"name"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	RuleState bool            `json:"ruleState,omitempty"`
	RuleEvent bool            `json:"ruleEvent,omitempty"`

	// EventExpires optionally overrides the configured default expiry for
	// event facts derived from this attribute, e.g. "30m".
	EventExpires string `json:"eventExpires,omitempty"`
}

// ValueEquals compares two attributes by name and value, ignoring the value
// timestamp. This is the comparison reconciliation uses to decide whether an
// attribute actually changed.
func (a Attribute) ValueEquals(other Attribute) bool {
	return a.Name == other.Name && bytes.Equal(a.Value, other.Value)
}

// AttributeRef identifies an attribute by asset id and attribute name. It is
// the identity under which state facts supersede each other.
type AttributeRef struct {
	AssetID string `json:"assetId"`
	Name    string `json:"name"`
}

// String returns "assetID:name" for logging
func (r AttributeRef) String() string {
	return fmt.Sprintf("%s:%s", r.AssetID, r.Name)
}

// Asset is a node in the tenant's asset tree.
type Asset struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	RealmID  string `json:"realmId"`
	ParentID string `json:"parentId,omitempty"`

	// Path is the asset's id chain from the tree root down to and including
	// the asset itself, nearest-root first.
	Path []string `json:"path,omitempty"`

	Attributes []Attribute `json:"attributes,omitempty"`
}

// RuleStateAttributes returns the attributes visible to rule deployments as
// state facts.
func (a *Asset) RuleStateAttributes() []Attribute {
	var out []Attribute
	for _, attr := range a.Attributes {
		if attr.RuleState {
			out = append(out, attr)
		}
	}
	return out
}

// Attribute returns the named attribute and whether it exists.
func (a *Asset) Attribute(name string) (Attribute, bool) {
	for _, attr := range a.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Tenant is a realm in the multi-tenant platform.
type Tenant struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`
}
