package docker

import (
	"fmt"

	"github.com/google/uuid"
)

// Label keys used for Crucible resources
const (
	LabelProject   = "crucible.project"
	LabelNamespace = "crucible.namespace"
	LabelRunID     = "crucible.run_id"
	LabelComponent = "crucible.component"
	LabelRedisPort = "crucible.redis.port"
)

// ComponentRedis marks the cache backend container.
const ComponentRedis = "redis"

// BuildLabels creates the standard label set for Crucible resources.
// component may be empty.
func BuildLabels(namespace, runID, component string) map[string]string {
	labels := map[string]string{
		LabelProject:   "true",
		LabelNamespace: namespace,
		LabelRunID:     runID,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// GenerateRunID creates a new UUID for one `crucible store up`.
func GenerateRunID() string {
	return uuid.New().String()
}

// RedisContainerName returns the Redis container name for a namespace
func RedisContainerName(namespace string) string {
	return fmt.Sprintf("crucible-redis-%s", namespace)
}

// RedisURL is the URL the CLI connects to for a Redis published on hostPort.
func RedisURL(hostPort int) string {
	return fmt.Sprintf("redis://127.0.0.1:%d/0", hostPort)
}
