// Package testutil provides isolated environments for command-level tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/require"
)

// Environment is an isolated working directory holding a crucible.yml,
// optionally backed by an in-process Redis.
type Environment struct {
	T           *testing.T
	TmpDir      string
	OriginalDir string
	Namespace   string
	Redis       *miniredis.Miniredis
	Ctx         context.Context
}

// SetupEnvironment creates a temp directory, writes crucibleYML into it (if
// non-empty) and changes into it. The original directory is restored on cleanup.
// Tests using it must not run in parallel.
func SetupEnvironment(t *testing.T, crucibleYML string) *Environment {
	tmpDir := t.TempDir()

	if crucibleYML != "" {
		path := filepath.Join(tmpDir, "crucible.yml")
		require.NoError(t, os.WriteFile(path, []byte(crucibleYML), 0644), "Failed to write crucible.yml")
	}

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir), "Failed to change to test directory")

	env := &Environment{
		T:           t,
		TmpDir:      tmpDir,
		OriginalDir: originalDir,
		Namespace:   fmt.Sprintf("test-%s", time.Now().Format("150405.000000")),
		Ctx:         context.Background(),
	}

	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	return env
}

// StartRedis starts a miniredis server for the environment and returns its URL.
func (env *Environment) StartRedis() string {
	env.Redis = miniredis.RunT(env.T)
	return fmt.Sprintf("redis://%s/0", env.Redis.Addr())
}

// RedisBlob returns the raw value stored under key in the environment's Redis.
func (env *Environment) RedisBlob(key string) string {
	require.NotNil(env.T, env.Redis, "Redis not started - call StartRedis first")
	value, err := env.Redis.Get(key)
	require.NoError(env.T, err, "No value stored under %s", key)
	return value
}

// VerifyFileExists checks that a file exists relative to the environment root.
func (env *Environment) VerifyFileExists(rel string) {
	_, err := os.Stat(filepath.Join(env.TmpDir, rel))
	require.NoError(env.T, err, "File %s does not exist", rel)
}

// MemoryYML returns a minimal crucible.yml using the memory backend.
func MemoryYML() string {
	return `version: "1.0"
storage:
  backend: memory
`
}

// FileYML returns a crucible.yml persisting to dir with the given namespace.
func FileYML(dir, namespace string) string {
	return fmt.Sprintf(`version: "1.0"
storage:
  backend: file
  path: %s
  namespace: %s
`, dir, namespace)
}

// RedisYML returns a crucible.yml pointing at redisURL with the given namespace.
func RedisYML(redisURL, namespace string) string {
	return fmt.Sprintf(`version: "1.0"
storage:
  backend: redis
  redis_url: %s
  namespace: %s
`, redisURL, namespace)
}

// CacheKey is a shorthand for the cache storage key of the environment namespace.
func (env *Environment) CacheKey() string {
	return alchemy.CacheKey(env.Namespace)
}
