package middleware

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/probewire/internal/event"
)

// TagStore returns the tags attached to a machine.
type TagStore interface {
	MachineTags(ctx context.Context, serialNumber string) ([]string, error)
}

// StaticTagStore serves tags from a fixed serial number → tags map.
type StaticTagStore map[string][]string

func (s StaticTagStore) MachineTags(_ context.Context, serialNumber string) ([]string, error) {
	return s[serialNumber], nil
}

// RedisTagStore reads machine tags from Redis sets keyed
// "<prefix><serial number>".
type RedisTagStore struct {
	client *redis.Client
	prefix string
}

// DefaultTagKeyPrefix is the Redis key prefix used when none is configured.
const DefaultTagKeyPrefix = "machine_tags:"

// NewRedisTagStore creates a RedisTagStore.
func NewRedisTagStore(client *redis.Client, prefix string) *RedisTagStore {
	if prefix == "" {
		prefix = DefaultTagKeyPrefix
	}
	return &RedisTagStore{client: client, prefix: prefix}
}

func (s *RedisTagStore) MachineTags(ctx context.Context, serialNumber string) ([]string, error) {
	tags, err := s.client.SMembers(ctx, s.prefix+serialNumber).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read machine tags: %w", err)
	}
	return tags, nil
}

// Tagger adds the machine's tags to the event metadata.
type Tagger struct {
	store TagStore
}

// NewTagger creates a Tagger backed by store.
func NewTagger(store TagStore) *Tagger {
	return &Tagger{store: store}
}

func (t *Tagger) ProcessEvent(ctx context.Context, e event.Event) error {
	md := e.Metadata()
	tags, err := t.store.MachineTags(ctx, md.MachineSerialNumber)
	if err != nil {
		return err
	}
	md.AddTags(tags...)
	return nil
}
