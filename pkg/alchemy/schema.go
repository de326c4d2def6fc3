package alchemy

import "fmt"

// Storage key pattern helpers
//
// All persisted blobs and Pub/Sub channels are namespaced so several players
// or deployments can share one backing store without interference.
//
// Key pattern: crucible:{namespace}:{blob}
// Channel pattern: crucible:{namespace}:{event_type}_events

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

// CacheKey returns the storage key of the resolution cache blob.
// Pattern: crucible:{namespace}:combinations:v2
func CacheKey(namespace string) string {
	return fmt.Sprintf("crucible:%s:combinations:v2", namespace)
}

// LibraryKey returns the storage key of the discovered-element library.
// Pattern: crucible:{namespace}:library
func LibraryKey(namespace string) string {
	return fmt.Sprintf("crucible:%s:library", namespace)
}

// SnapshotsKey returns the storage key of the named workspace snapshots list.
// Pattern: crucible:{namespace}:snapshots
func SnapshotsKey(namespace string) string {
	return fmt.Sprintf("crucible:%s:snapshots", namespace)
}

// CredentialKey returns the storage key of the user-entered generative credential.
// Pattern: crucible:{namespace}:credential
func CredentialKey(namespace string) string {
	return fmt.Sprintf("crucible:%s:credential", namespace)
}

// DiscoveryEventsChannel returns the Pub/Sub channel carrying new discoveries.
// Pattern: crucible:{namespace}:discovery_events
func DiscoveryEventsChannel(namespace string) string {
	return fmt.Sprintf("crucible:%s:discovery_events", namespace)
}
