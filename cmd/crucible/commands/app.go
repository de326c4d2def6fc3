package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dyluth/crucible/internal/cache"
	"github.com/dyluth/crucible/internal/config"
	"github.com/dyluth/crucible/internal/credential"
	"github.com/dyluth/crucible/internal/engine"
	"github.com/dyluth/crucible/internal/generative"
	"github.com/dyluth/crucible/internal/printer"
	"github.com/dyluth/crucible/internal/recipes"
	"github.com/dyluth/crucible/internal/session"
	"github.com/dyluth/crucible/internal/snapshot"
	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// app is everything a command needs, built from crucible.yml.
type app struct {
	cfg       *config.CrucibleConfig
	store     store.Store
	redis     *store.RedisStore // nil unless the redis backend is selected
	override  *credential.OverrideSource
	stored    *credential.StoredSource
	chain     *credential.Chain
	engine    *engine.Engine
	snapshots *snapshot.Manager
}

// loadConfig reads the --config file, falling back to defaults when it is missing.
func loadConfig() (*config.CrucibleConfig, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Check crucible.yml against the documented schema", "Remove the file to run with defaults (memory backend)"},
		)
	}
	return cfg, nil
}

// openStore connects the configured backend. For redis the connection is
// verified before returning.
func openStore(ctx context.Context, cfg *config.CrucibleConfig) (store.Store, *store.RedisStore, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil, nil

	case config.BackendFile:
		fs, err := store.NewFileStore(sc.Path)
		if err != nil {
			return nil, nil, printer.ErrorWithContext(
				"storage unavailable",
				err.Error(),
				map[string]string{"Path": sc.Path},
				[]string{"Check the directory is writable or change storage.path"},
			)
		}
		return fs, nil, nil

	case config.BackendRedis:
		rs, err := store.NewRedisStoreFromURL(sc.RedisURL, sc.Namespace)
		if err != nil {
			return nil, nil, printer.Error("invalid Redis URL", err.Error(), []string{"Use the form redis://host:port/db"})
		}
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, printer.ErrorWithContext(
				"Redis connection failed",
				fmt.Sprintf("Could not connect to Redis at %s", sc.RedisURL),
				map[string]string{"Error": err.Error()},
				[]string{
					"Start a local Redis for this namespace:\n  crucible store up",
					fmt.Sprintf("Or point %s at a reachable server", config.EnvRedisURL),
				},
			)
		}
		return rs, rs, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", sc.Backend)
	}
}

// openApp loads config, connects storage and wires the engine.
// The cache and library are loaded from storage before returning.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backing, rs, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ns := cfg.Storage.Namespace
	table := recipes.Default()

	c := cache.New(backing, alchemy.CacheKey(ns))
	c.Load(ctx)

	lib := engine.NewLibrary(backing, alchemy.LibraryKey(ns), table.Starters())
	lib.Load(ctx)

	gc := cfg.Generative
	override := &credential.OverrideSource{}
	stored := credential.NewStoredSource(backing, alchemy.CredentialKey(ns))
	var fallback credential.Source
	if gc.FallbackEnv != "" {
		fallback = credential.NewFallback(os.Getenv(gc.FallbackEnv))
	}
	chain := credential.NewChain(override, stored, credential.NewEnvSource(gc.CredentialEnv...), fallback)

	resolver := generative.New(generative.Config{
		Endpoint:        gc.Endpoint,
		Model:           gc.Model,
		MaxOutputTokens: gc.MaxOutputTokens,
		Temperature:     gc.TemperatureOrZero(),
		Timeout:         gc.Timeout,
	}, chain)

	ecfg := engine.Config{
		Recipes:   table,
		Cache:     c,
		Library:   lib,
		Resolver:  resolver,
		Namespace: ns,
	}
	if rs != nil {
		ecfg.Publisher = rs
	}

	return &app{
		cfg:       cfg,
		store:     backing,
		redis:     rs,
		override:  override,
		stored:    stored,
		chain:     chain,
		engine:    engine.New(ecfg),
		snapshots: snapshot.NewManager(backing, alchemy.SnapshotsKey(ns)),
	}, nil
}

// newSession creates a seeded session over the app's engine.
func (a *app) newSession() *session.Session {
	s := session.New(a.engine, session.Options{
		HitRadius:    a.cfg.Workspace.HitRadius,
		HistoryLimit: *a.cfg.Workspace.HistoryLimit,
	})
	s.Seed()
	return s
}

// namespace is the configured storage namespace.
func (a *app) namespace() string {
	return a.cfg.Storage.Namespace
}

// Close releases the backend connection.
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
}
