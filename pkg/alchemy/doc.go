// Package alchemy provides the shared data model for the Crucible element sandbox.
//
// # Overview
//
// A player drags element tokens onto a canvas; dropping one token onto another
// attempts to fuse the two into a new element. This package defines the values
// every other component passes around: element definitions, the live instances
// placed on the workspace, the order-independent combination key, and the
// tagged combination result.
//
// # Core Concepts
//
// Elements are immutable templates identified by Name. The ID is a slug derived
// from the name and is only used for display and storage.
//
// Instances are live placements of an element. Each carries a unique instance
// ID that is never reused, a canvas position, and a State that is StatePending
// only while the instance takes part in an in-flight combine.
//
// Keys are the two ingredient names sorted lexicographically and joined with
// KeySeparator, so combining X with Y and Y with X always resolve through the
// same key.
//
// Results are either a success carrying the new element or a bare failure.
// Failures are first-class values: they are cached and persisted like successes.
//
// # Usage Example
//
//	import "github.com/dyluth/crucible/pkg/alchemy"
//
//	key := alchemy.CombinationKey("Water", "Fire")
//	// key = "Fire|Water"
//
//	el := alchemy.Template{Name: "Steam"}.Materialize("Fire", "Water")
//	// el.ID = "steam", el.Emoji = "✨", el.Description = "Combined from Fire and Water"
//
// # Storage Schema
//
// All persisted blobs follow the pattern: crucible:{namespace}:{blob}
//
// Resolution cache: crucible:{namespace}:combinations:v2
// Library: crucible:{namespace}:library
// Snapshots: crucible:{namespace}:snapshots
// Credential: crucible:{namespace}:credential
//
// Pub/Sub channels: crucible:{namespace}:{event_type}_events
//
// Discovery Events: crucible:{namespace}:discovery_events
//
// # Compatibility
//
// Cache and snapshot decoding is deliberately lenient. Unknown fields are
// ignored, malformed cache entries are skipped one by one, and instances read
// from an external snapshot always come back idle.
package alchemy
