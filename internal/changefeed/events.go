// Package changefeed keeps concurrent dashboard sessions consistent with the
// ledger without full re-fetch. Every committed mutation is published as an
// Event on a per-entity stream; sessions apply events to a local View.
package changefeed

// EntityType selects a stream.
type EntityType string

const (
	EntityDriver   EntityType = "driver"
	EntityDelivery EntityType = "delivery"
)

// Kind is the mutation kind carried by an event.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event describes a committed mutation with its post-mutation value.
// Delivery is at-least-once: the (Entity, Kind, Key, Version) tuple lets
// subscribers drop duplicates and stale updates.
type Event struct {
	Entity  EntityType `json:"entity"`
	Kind    Kind       `json:"kind"`
	Key     string     `json:"key"`
	Version int64      `json:"version,omitempty"`
	Value   any        `json:"value,omitempty"`
}

// ValidEntity reports whether the entity names a known stream.
func ValidEntity(entity EntityType) bool {
	switch entity {
	case EntityDriver, EntityDelivery:
		return true
	default:
		return false
	}
}
