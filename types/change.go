package types

// ChangeCause is the persistence operation that produced a notification.
type ChangeCause string

// Change causes
const (
	CauseInsert ChangeCause = "INSERT"
	CauseUpdate ChangeCause = "UPDATE"
	CauseDelete ChangeCause = "DELETE"
)

// EntityKind names the entity type a change notification refers to.
type EntityKind string

// Entity kinds delivered by the persistence feed
const (
	KindRuleset EntityKind = "ruleset"
	KindTenant  EntityKind = "tenant"
	KindAsset   EntityKind = "asset"
)

// ChangeNotification is one persistence event. The embedded snapshots may be
// partially populated; consumers reload the authoritative entity from storage
// before acting on anything beyond identity. Delivery is at-least-once, so
// handling must be idempotent.
type ChangeNotification struct {
	Kind  EntityKind  `json:"kind"`
	Cause ChangeCause `json:"cause"`

	Ruleset *Ruleset `json:"ruleset,omitempty"`
	Tenant  *Tenant  `json:"tenant,omitempty"`
	Asset   *Asset   `json:"asset,omitempty"`

	// Attribute snapshots before and after an asset UPDATE, used to diff
	// which facts to retract and insert.
	PreviousAttributes []Attribute `json:"previousAttributes,omitempty"`
	CurrentAttributes  []Attribute `json:"currentAttributes,omitempty"`

	// ChangedProperties lists the entity fields the persistence layer saw
	// change, e.g. "attributes".
	ChangedProperties []string `json:"changedProperties,omitempty"`
}
