// Package credential resolves the API key used by the generative resolver.
//
// Sources are consulted in a fixed order and the first non-empty value wins:
// the session override, the user-entered stored credential, the process
// environment, and finally a pluggable fallback policy. Resolution never
// touches the network.
package credential

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dyluth/crucible/internal/store"
)

// Source names reported alongside a resolved credential.
const (
	SourceOverride    = "override"
	SourceStored      = "stored"
	SourceEnvironment = "environment"
	SourceFallback    = "fallback"
)

// DefaultEnvVars are the environment variables checked when none are configured.
var DefaultEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// Credential is a resolved secret and the source it came from.
type Credential struct {
	Value  string
	Source string
}

// Source yields a credential or the empty string.
type Source interface {
	Name() string
	Lookup(ctx context.Context) (string, error)
}

// Chain consults its sources in order.
type Chain struct {
	override *OverrideSource
	sources  []Source
}

// NewChain builds the standard precedence chain:
// override → stored → environment → fallback. Nil sources are skipped.
func NewChain(override *OverrideSource, stored *StoredSource, env *EnvSource, fallback Source) *Chain {
	c := &Chain{override: override}
	if override != nil {
		c.sources = append(c.sources, override)
	}
	if stored != nil {
		c.sources = append(c.sources, stored)
	}
	if env != nil {
		c.sources = append(c.sources, env)
	}
	if fallback != nil {
		c.sources = append(c.sources, fallback)
	}
	return c
}

// Resolve returns the first credential found.
// A source that fails is skipped; its error never blocks later sources.
func (c *Chain) Resolve(ctx context.Context) (Credential, bool) {
	for _, s := range c.sources {
		value, err := s.Lookup(ctx)
		if err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return Credential{Value: value, Source: s.Name()}, true
		}
	}
	return Credential{}, false
}

// Has reports whether any source currently yields a credential.
func (c *Chain) Has(ctx context.Context) bool {
	_, ok := c.Resolve(ctx)
	return ok
}

// Override returns the session-level override source, if the chain has one.
func (c *Chain) Override() *OverrideSource {
	return c.override
}

// OverrideSource holds a session-scoped credential set at runtime.
type OverrideSource struct {
	mu    sync.RWMutex
	value string
}

// Name implements Source.
func (o *OverrideSource) Name() string { return SourceOverride }

// Lookup implements Source.
func (o *OverrideSource) Lookup(context.Context) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value, nil
}

// Set replaces the session override.
func (o *OverrideSource) Set(value string) {
	o.mu.Lock()
	o.value = strings.TrimSpace(value)
	o.mu.Unlock()
}

// Clear removes the session override.
func (o *OverrideSource) Clear() {
	o.Set("")
}

// StoredSource reads the user-entered credential from the blob store.
type StoredSource struct {
	store store.Store
	key   string
}

// NewStoredSource creates a source reading key from s.
func NewStoredSource(s store.Store, key string) *StoredSource {
	return &StoredSource{store: s, key: key}
}

// Name implements Source.
func (s *StoredSource) Name() string { return SourceStored }

// Lookup implements Source. A missing blob yields the empty string.
func (s *StoredSource) Lookup(ctx context.Context) (string, error) {
	data, err := s.store.Load(ctx, s.key)
	if err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read stored credential: %w", err)
	}
	return string(data), nil
}

// Set stores a user-entered credential. An empty value clears it.
func (s *StoredSource) Set(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return s.Clear(ctx)
	}
	if err := s.store.Save(ctx, s.key, []byte(value)); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Clear removes the stored credential.
func (s *StoredSource) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear stored credential: %w", err)
	}
	return nil
}

// EnvSource reads the first non-empty variable from a list.
type EnvSource struct {
	vars   []string
	lookup func(string) string
}

// NewEnvSource checks vars in order, or DefaultEnvVars when vars is empty.
func NewEnvSource(vars ...string) *EnvSource {
	if len(vars) == 0 {
		vars = DefaultEnvVars
	}
	return &EnvSource{vars: vars, lookup: os.Getenv}
}

// Name implements Source.
func (e *EnvSource) Name() string { return SourceEnvironment }

// Lookup implements Source.
func (e *EnvSource) Lookup(context.Context) (string, error) {
	for _, v := range e.vars {
		if value := e.lookup(v); value != "" {
			return value, nil
		}
	}
	return "", nil
}

// StaticSource is the fallback policy: a shared credential supplied by
// deployment configuration. There is no compiled-in default.
type StaticSource struct {
	value string
}

// NewFallback returns a fallback source for value, or nil when value is empty
// so the chain simply has no fallback.
func NewFallback(value string) Source {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &StaticSource{value: value}
}

// Name implements Source.
func (s *StaticSource) Name() string { return SourceFallback }

// Lookup implements Source.
func (s *StaticSource) Lookup(context.Context) (string, error) {
	return s.value, nil
}

// Mask hides all but the last four characters of a credential for display.
func Mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
