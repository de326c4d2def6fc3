package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dyluth/crucible/pkg/alchemy"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps blobs as Redis strings and carries the discovery event feed
// over Redis Pub/Sub. Keys are expected to be namespaced by the caller using
// the alchemy schema helpers.
// The store is thread-safe and can be used concurrently from multiple goroutines.
type RedisStore struct {
	rdb       *redis.Client
	namespace string
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - namespace: namespace used for Pub/Sub channels (must not be empty)
func NewRedisStore(redisOpts *redis.Options, namespace string) (*RedisStore, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}

	return &RedisStore{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
	}, nil
}

// NewRedisStoreFromURL parses a redis:// URL and creates a store for it.
func NewRedisStoreFromURL(redisURL, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	return NewRedisStore(opts, namespace)
}

// Close closes the Redis connection. Implements io.Closer.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Load reads the blob stored under key.
// Returns ErrNotFound if the key does not exist.
func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	return data, nil
}

// Save writes the blob under key, replacing any previous value.
func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	return nil
}

// PublishDiscovery publishes a newly discovered element as JSON on
// crucible:{namespace}:discovery_events.
func (s *RedisStore) PublishDiscovery(ctx context.Context, el alchemy.Element) error {
	payload, err := json.Marshal(el)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery event: %w", err)
	}

	channel := alchemy.DiscoveryEventsChannel(s.namespace)
	if err := s.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish discovery event: %w", err)
	}
	return nil
}

// Subscription represents an active Pub/Sub subscription to discovery events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan alchemy.Element
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of discovered elements.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan alchemy.Element {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors.
// The subscription continues after errors - the offending message is skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeDiscoveries subscribes to discovery events for this namespace.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is
// at-most-once: a slow subscriber can miss events.
func (s *RedisStore) SubscribeDiscoveries(ctx context.Context) (*Subscription, error) {
	channel := alchemy.DiscoveryEventsChannel(s.namespace)
	pubsub := s.rdb.Subscribe(ctx, channel)

	// Wait for the subscription to be confirmed so publishes issued right after
	// this call are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	eventsChan := make(chan alchemy.Element, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var el alchemy.Element
				if err := json.Unmarshal([]byte(msg.Payload), &el); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal discovery event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- el:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
