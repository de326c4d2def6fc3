// Package watch follows discoveries made by any session sharing a namespace.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/crucible/internal/engine"
	"github.com/dyluth/crucible/internal/store"
	"github.com/dyluth/crucible/pkg/alchemy"
)

// OutputFormat selects how streamed events are written.
type OutputFormat string

const (
	// OutputFormatDefault prints one human-readable line per discovery
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON prints line-delimited JSON events
	OutputFormatJSON OutputFormat = "json"
)

// pollInterval is how often PollForDiscovery re-reads the persisted library.
const pollInterval = 200 * time.Millisecond

// Subscriber opens a discovery event subscription.
// *store.RedisStore satisfies it.
type Subscriber interface {
	SubscribeDiscoveries(ctx context.Context) (*store.Subscription, error)
}

// Event is the JSON form of a streamed discovery.
type Event struct {
	Timestamp string          `json:"timestamp"`
	Namespace string          `json:"namespace"`
	EventType string          `json:"event_type"`
	Element   alchemy.Element `json:"element"`
}

// StreamDiscoveries writes every discovery published on namespace to w until
// ctx is cancelled or the subscription ends. If limit > 0 the stream stops
// after that many discoveries. Subscription errors are reported inline and do
// not end the stream.
func StreamDiscoveries(ctx context.Context, sub Subscriber, namespace string, format OutputFormat, limit int, w io.Writer) error {
	switch format {
	case OutputFormatDefault, OutputFormatJSON:
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	subscription, err := sub.SubscribeDiscoveries(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to discoveries: %w", err)
	}
	defer subscription.Close()

	if format == OutputFormatDefault {
		fmt.Fprintf(w, "Watching discoveries in namespace '%s' (Ctrl+C to stop)...\n", namespace)
	}

	events := subscription.Events()
	errs := subscription.Errors()
	seen := 0

	for {
		select {
		case <-ctx.Done():
			return nil

		case el, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, namespace, el, format, time.Now()); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if format == OutputFormatDefault {
				fmt.Fprintf(w, "⚠️  %v\n", err)
			}
		}
	}
}

func writeEvent(w io.Writer, namespace string, el alchemy.Element, format OutputFormat, now time.Time) error {
	if format == OutputFormatJSON {
		data, err := json.Marshal(Event{
			Timestamp: now.UTC().Format(time.RFC3339),
			Namespace: namespace,
			EventType: "element_discovered",
			Element:   el,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	line := fmt.Sprintf("[%s] ✨ Discovered %s %s", now.Format("15:04:05"), el.Emoji, el.Name)
	if el.Description != "" {
		line += ": " + el.Description
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// PollForDiscovery waits until the persisted library contains an element
// named name. The library is reloaded from its store on every tick, so
// discoveries made by other processes sharing the store are picked up.
func PollForDiscovery(ctx context.Context, lib *engine.Library, name string, timeout time.Duration) (alchemy.Element, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		if el, ok := lib.Get(name); ok {
			return el, nil
		}

		select {
		case <-ctx.Done():
			return alchemy.Element{}, ctx.Err()

		case <-timeoutCh:
			return alchemy.Element{}, fmt.Errorf("timeout waiting for %q after %v", name, timeout)

		case <-ticker.C:
			lib.Load(ctx)
		}
	}
}
