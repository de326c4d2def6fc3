// Package engine implements the combination engine: tiered resolution of an
// ingredient pair through the recipe table, the resolution cache and finally
// the generative resolver, plus the library of discovered elements.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/dyluth/crucible/internal/cache"
	"github.com/dyluth/crucible/internal/generative"
	"github.com/dyluth/crucible/internal/recipes"
	"github.com/dyluth/crucible/pkg/alchemy"
)

const persistTimeout = 2 * time.Second

// Tier names which resolution step produced an outcome.
type Tier string

const (
	TierRecipe     Tier = "recipe"
	TierCache      Tier = "cache"
	TierGenerative Tier = "generative"
	// TierNone is reported when resolution stopped before any tier answered.
	TierNone Tier = ""
)

// Outcome is the result of one Combine call.
type Outcome struct {
	Key    alchemy.Key    `json:"key"`
	Tier   Tier           `json:"tier,omitempty"`
	Result alchemy.Result `json:"result"`
	// New is true when the resulting element was added to the library by this call.
	New bool `json:"new,omitempty"`
}

// Resolver is the generative tier. Implemented by *generative.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, a, b alchemy.Element) (alchemy.Result, error)
	HasCredential(ctx context.Context) bool
}

// Publisher forwards discoveries to other processes. Implemented by *store.RedisStore.
type Publisher interface {
	PublishDiscovery(ctx context.Context, el alchemy.Element) error
}

// Events are optional callbacks fired after the corresponding state change.
// They are invoked synchronously and must not call back into the engine.
type Events struct {
	OnNewDiscovery  func(el alchemy.Element)
	OnCombineFailed func(reason Reason)
}

// Config wires the engine's collaborators. Recipes, Cache and Library are required.
type Config struct {
	Recipes   *recipes.Table
	Cache     *cache.Cache
	Library   *Library
	Resolver  Resolver
	Publisher Publisher
	Events    Events
	Namespace string
}

// Engine resolves ingredient pairs. Safe for concurrent use.
type Engine struct {
	recipes   *recipes.Table
	cache     *cache.Cache
	library   *Library
	resolver  Resolver
	publisher Publisher
	events    Events
	namespace string
}

// New creates an engine from cfg.
func New(cfg Config) *Engine {
	ns := cfg.Namespace
	if ns == "" {
		ns = alchemy.DefaultNamespace
	}
	return &Engine{
		recipes:   cfg.Recipes,
		cache:     cfg.Cache,
		library:   cfg.Library,
		resolver:  cfg.Resolver,
		publisher: cfg.Publisher,
		events:    cfg.Events,
		namespace: ns,
	}
}

// Library returns the engine's element library.
func (e *Engine) Library() *Library {
	return e.library
}

// Cache returns the engine's resolution cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Recipes returns the engine's recipe table.
func (e *Engine) Recipes() *recipes.Table {
	return e.recipes
}

// HasCredential reports whether the generative tier currently has an API key.
func (e *Engine) HasCredential(ctx context.Context) bool {
	return e.resolver != nil && e.resolver.HasCredential(ctx)
}

// Combine resolves a and b, which are interchangeable.
//
// Resolution order:
//  1. the recipe table, which never consults the cache or the resolver
//  2. the resolution cache, returning a deep copy of a memoized result
//  3. the credential check, failing with ReasonNoCredential without a network call
//  4. the generative resolver, whose success or semantic failure is cached
//
// A transport failure is never cached so the pair is retried next time.
// Every unsuccessful outcome returns a *CombineError alongside an Outcome whose
// Result is {Success: false}.
func (e *Engine) Combine(ctx context.Context, a, b alchemy.Element) (Outcome, error) {
	key := alchemy.CombinationKey(a.Name, b.Name)
	out := Outcome{Key: key, Result: alchemy.Failure()}

	e.logEvent("combine_requested", map[string]interface{}{
		"key": key.String(),
	})

	if tmpl, ok := e.recipes.Lookup(key); ok {
		out.Tier = TierRecipe
		out.Result = alchemy.Succeeded(tmpl.Materialize(a.Name, b.Name))
		out.New = e.discover(ctx, *out.Result.Element)
		e.logEvent("recipe_hit", map[string]interface{}{
			"key":    key.String(),
			"result": out.Result.Element.Name,
		})
		return out, nil
	}

	if cached, ok := e.cache.Get(key); ok {
		out.Tier = TierCache
		out.Result = cached
		if !cached.Success {
			return out, e.fail(key, a, b, ReasonInvalidMix, nil)
		}
		out.New = e.discover(ctx, *cached.Element)
		e.logEvent("cache_hit", map[string]interface{}{
			"key":    key.String(),
			"result": cached.Element.Name,
		})
		return out, nil
	}

	if !e.HasCredential(ctx) {
		return out, e.fail(key, a, b, ReasonNoCredential, nil)
	}

	result, err := e.resolver.Resolve(ctx, a, b)
	if err != nil {
		if errors.Is(err, generative.ErrNoCredential) {
			return out, e.fail(key, a, b, ReasonNoCredential, err)
		}
		log.Printf("[Engine] Generative resolver failed for %s: %v", key, err)
		return out, e.fail(key, a, b, ReasonResolverError, err)
	}

	out.Tier = TierGenerative
	e.cache.Put(ctx, key, result)

	if !result.Success || result.Element == nil {
		out.Result = alchemy.Failure()
		return out, e.fail(key, a, b, ReasonInvalidMix, nil)
	}

	out.Result = result.Clone()
	out.New = e.discover(ctx, *result.Element)
	e.logEvent("generative_resolved", map[string]interface{}{
		"key":    key.String(),
		"result": result.Element.Name,
	})
	return out, nil
}

// discover adds el to the library and fires the discovery hooks if it is new.
func (e *Engine) discover(ctx context.Context, el alchemy.Element) bool {
	if e.library == nil || !e.library.Add(ctx, el) {
		return false
	}

	e.logEvent("element_discovered", map[string]interface{}{
		"element_id": el.ID,
		"name":       el.Name,
	})

	if e.publisher != nil {
		if err := e.publisher.PublishDiscovery(ctx, el); err != nil {
			log.Printf("[Engine] Failed to publish discovery %q: %v", el.Name, err)
		}
	}
	if e.events.OnNewDiscovery != nil {
		e.events.OnNewDiscovery(el)
	}
	return true
}

func (e *Engine) fail(key alchemy.Key, a, b alchemy.Element, reason Reason, cause error) error {
	data := map[string]interface{}{
		"key":    key.String(),
		"reason": string(reason),
	}
	if cause != nil {
		data["error"] = cause.Error()
	}
	e.logEvent("combine_failed", data)

	if e.events.OnCombineFailed != nil {
		e.events.OnCombineFailed(reason)
	}
	return &CombineError{Reason: reason, A: a.Name, B: b.Name, Err: cause}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["namespace"] = e.namespace

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
