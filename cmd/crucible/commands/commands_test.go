package commands

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyluth/crucible/internal/cache"
	"github.com/dyluth/crucible/internal/config"
	"github.com/dyluth/crucible/internal/credential"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/internal/testutil"
	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearCredentialEnv keeps ambient API keys and overrides out of a test.
func clearCredentialEnv(t *testing.T) {
	for _, name := range append([]string{config.EnvRedisURL, config.EnvNamespace}, credential.DefaultEnvVars...) {
		t.Setenv(name, "")
	}
}

// redisEnv starts miniredis and writes a crucible.yml pointing at it.
func redisEnv(t *testing.T) (*testutil.Environment, *store.RedisStore) {
	env := testutil.SetupEnvironment(t, "")
	url := env.StartRedis()
	yml := testutil.RedisYML(url, env.Namespace)
	require.NoError(t, os.WriteFile(filepath.Join(env.TmpDir, config.DefaultPath), []byte(yml), 0644))

	rs, err := store.NewRedisStoreFromURL(url, env.Namespace)
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })
	return env, rs
}

func TestRecipesCommand(t *testing.T) {
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	t.Run("default table", func(t *testing.T) {
		output, err := runCLI(t, "recipes")
		require.NoError(t, err)
		assert.Contains(t, output, "INGREDIENTS")
		assert.Contains(t, output, "Steam")
		assert.Contains(t, output, "combinations found")
	})

	t.Run("jsonl", func(t *testing.T) {
		output, err := runCLI(t, "recipes", "-o", "jsonl")
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(output), "\n")
		require.NotEmpty(t, lines)

		found := false
		for _, line := range lines {
			var entry struct {
				Key    string         `json:"key"`
				Result alchemy.Result `json:"result"`
			}
			require.NoError(t, json.Unmarshal([]byte(line), &entry), "line is not JSON: %s", line)
			if entry.Key == "Fire|Water" {
				found = true
				require.True(t, entry.Result.Success)
				assert.Equal(t, "Steam", entry.Result.Element.Name)
			}
		}
		assert.True(t, found, "Fire|Water recipe should be listed")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runCLI(t, "recipes", "-o", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})
}

func TestCombineCommand(t *testing.T) {
	clearCredentialEnv(t)
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	t.Run("recipe", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Water", "Fire")
		require.NoError(t, err)
		assert.Contains(t, output, "Steam")
		assert.Contains(t, output, "resolved by recipe")
	})

	t.Run("recipe json", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Fire", "Water", "--json")
		require.NoError(t, err)

		var out combineOutput
		require.NoError(t, json.Unmarshal([]byte(output), &out))
		assert.Equal(t, alchemy.Key("Fire|Water"), out.Key)
		assert.Equal(t, "recipe", string(out.Tier))
		require.True(t, out.Result.Success)
		assert.Equal(t, "Steam", out.Result.Element.Name)
		assert.Empty(t, out.Reason)
	})

	t.Run("unknown element", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Water", "Phlogiston")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown element 'Phlogiston'")
		assert.Contains(t, output, "case-sensitive")
	})

	t.Run("names are case-sensitive", func(t *testing.T) {
		_, err := runCLI(t, "combine", "water", "Fire")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown element 'water'")
	})

	t.Run("no credential", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Chaos", "Time")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credential")
		assert.Contains(t, output, "crucible credential set")
	})

	t.Run("no credential json", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Chaos", "Time", "--json")
		require.NoError(t, err, "--json reports failures in the payload")

		var out combineOutput
		require.NoError(t, json.Unmarshal([]byte(output), &out))
		assert.False(t, out.Result.Success)
		assert.Equal(t, "no_credential", string(out.Reason))
	})

	t.Run("wrong arg count", func(t *testing.T) {
		_, err := runCLI(t, "combine", "Water")
		assert.Error(t, err)
	})
}

func TestCacheCommands(t *testing.T) {
	clearCredentialEnv(t)
	env, rs := redisEnv(t)
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		output, err := runCLI(t, "cache", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "No cached combinations found")
	})

	c := cache.New(rs, env.CacheKey())
	c.Put(ctx, alchemy.CombinationKey("Time", "Chaos"), alchemy.Result{
		Success: true,
		Element: &alchemy.Element{ID: "entropy", Name: "Entropy", Emoji: "🌀", Description: "Disorder over time."},
	})
	c.Put(ctx, alchemy.CombinationKey("Void", "Light"), alchemy.Result{Success: false})

	t.Run("list shows cached answers", func(t *testing.T) {
		output, err := runCLI(t, "cache", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "Entropy")
		assert.Contains(t, output, "(no result)")
		assert.Contains(t, output, "2 combinations found")
	})

	t.Run("list with glob", func(t *testing.T) {
		output, err := runCLI(t, "cache", "list", "--match", "Chaos|*", "-o", "jsonl")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(output), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"key":"Chaos|Time"`)
	})

	t.Run("cached answer is served without a credential", func(t *testing.T) {
		output, err := runCLI(t, "combine", "Time", "Chaos")
		require.NoError(t, err)
		assert.Contains(t, output, "Entropy")
		assert.Contains(t, output, "resolved by cache")
	})

	t.Run("cached invalid mix", func(t *testing.T) {
		_, err := runCLI(t, "combine", "Light", "Void")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing happened")
	})

	t.Run("forget", func(t *testing.T) {
		output, err := runCLI(t, "cache", "forget", "Light", "Void")
		require.NoError(t, err)
		assert.Contains(t, output, "Forgot Light|Void")

		assert.NotContains(t, env.RedisBlob(env.CacheKey()), "Light|Void")

		_, err = runCLI(t, "cache", "forget", "Light", "Void")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not cached")
	})

	t.Run("clear", func(t *testing.T) {
		output, err := runCLI(t, "cache", "clear")
		require.NoError(t, err)
		assert.Contains(t, output, "Cleared 1 cached combinations")

		output, err = runCLI(t, "cache", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "No cached combinations found")
	})
}

func TestCredentialCommands(t *testing.T) {
	clearCredentialEnv(t)
	redisEnv(t)

	t.Run("status without credential", func(t *testing.T) {
		output, err := runCLI(t, "credential", "status")
		require.NoError(t, err)
		assert.Contains(t, output, "No credential configured")
	})

	t.Run("set masks the key", func(t *testing.T) {
		output, err := runCLI(t, "credential", "set", "sk-test-abcd1234")
		require.NoError(t, err)
		assert.Contains(t, output, "1234")
		assert.NotContains(t, output, "sk-test")
	})

	t.Run("status reports stored key", func(t *testing.T) {
		output, err := runCLI(t, "credential", "status")
		require.NoError(t, err)
		assert.Contains(t, output, "Using stored credential")
		assert.Contains(t, output, "1234")
	})

	t.Run("environment is lower priority than stored", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "env-key-9999")
		output, err := runCLI(t, "credential", "status")
		require.NoError(t, err)
		assert.Contains(t, output, "stored")
	})

	t.Run("clear", func(t *testing.T) {
		_, err := runCLI(t, "credential", "clear")
		require.NoError(t, err)

		output, err := runCLI(t, "credential", "status")
		require.NoError(t, err)
		assert.Contains(t, output, "No credential configured")
	})

	t.Run("blank key rejected", func(t *testing.T) {
		_, err := runCLI(t, "credential", "set", "   ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty credential")
	})
}

func TestCredentialSet_MemoryBackendWarns(t *testing.T) {
	clearCredentialEnv(t)
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	output, err := runCLI(t, "credential", "set", "abcd1234")
	require.NoError(t, err)
	assert.Contains(t, output, "memory backend")
}

func TestSnapshotCommands(t *testing.T) {
	clearCredentialEnv(t)
	env, rs := redisEnv(t)
	ctx := context.Background()

	t.Run("empty list", func(t *testing.T) {
		output, err := runCLI(t, "snapshot", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "No snapshots found")
	})

	mgr := snapshot.NewManager(rs, alchemy.SnapshotsKey(env.Namespace))
	castle, err := mgr.Save(ctx, "castle", []alchemy.Instance{
		{Element: alchemy.Element{ID: "stone", Name: "Stone"}, InstanceID: "i1", X: 10, Y: 20},
	})
	require.NoError(t, err)
	_, err = mgr.Save(ctx, "garden", nil)
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		output, err := runCLI(t, "snapshot", "list")
		require.NoError(t, err)
		assert.Contains(t, output, "castle")
		assert.Contains(t, output, "garden")
	})

	t.Run("list by name", func(t *testing.T) {
		output, err := runCLI(t, "snapshot", "list", "--name", "cas*", "-o", "jsonl")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(output), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], castle.ID)
	})

	t.Run("show by short id", func(t *testing.T) {
		output, err := runCLI(t, "snapshot", "show", castle.ID[:8])
		require.NoError(t, err)

		var got snapshot.Snapshot
		require.NoError(t, json.Unmarshal([]byte(output), &got))
		assert.Equal(t, castle.ID, got.ID)
		require.Len(t, got.Elements, 1)
		assert.Equal(t, "Stone", got.Elements[0].Name)
	})

	t.Run("bad since", func(t *testing.T) {
		_, err := runCLI(t, "snapshot", "list", "--since", "yesterday-ish")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := runCLI(t, "snapshot", "delete", castle.ID)
		require.NoError(t, err)

		_, err = runCLI(t, "snapshot", "show", castle.ID)
		assert.Error(t, err)
	})
}

func TestWatchCommand_RequiresRedis(t *testing.T) {
	clearCredentialEnv(t)
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	_, err := runCLI(t, "watch", "--count", "1")
	require.Error(t, err)
}

func TestWatchCommand_ForKnownElement(t *testing.T) {
	clearCredentialEnv(t)
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	output, err := runCLI(t, "watch", "--for", "Water", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, output, "Water")
}

func TestWatchCommand_InvalidFormat(t *testing.T) {
	testutil.SetupEnvironment(t, testutil.MemoryYML())

	_, err := runCLI(t, "watch", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}
