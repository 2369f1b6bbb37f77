package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/identifier"
)

const redisActorKeyPrefix = "hive:actor:"

type redisActorCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisActorCache(redisURL string, ttl time.Duration) (*redisActorCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opt.MaxRetries = 0
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &redisActorCache{client, ttl}, nil
}

func redisActorKey(url identifier.ActorURL) string {
	return redisActorKeyPrefix + strconv.FormatUint(xxhash.Sum64String(string(url)), 16)
}

func (c *redisActorCache) Close() error {
	return c.client.Close()
}

// Get treats an entry stored for a different URL under the same hash as a
// miss.
func (c *redisActorCache) Get(ctx context.Context, url identifier.ActorURL) (*activitypub.RemoteActor, error) {
	raw, err := c.client.Get(ctx, redisActorKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting actor from redis: %w", err)
	}

	var entry redisActorEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decoding cached actor: %w", err)
	}
	if entry.URL != string(url) {
		return nil, nil
	}
	return entry.Actor, nil
}

func (c *redisActorCache) Set(ctx context.Context, url identifier.ActorURL, actor *activitypub.RemoteActor) error {
	raw, err := json.Marshal(redisActorEntry{URL: string(url), Actor: actor})
	if err != nil {
		return fmt.Errorf("encoding actor: %w", err)
	}
	if err := c.client.Set(ctx, redisActorKey(url), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("setting actor in redis: %w", err)
	}
	return nil
}

type redisActorEntry struct {
	URL   string                   `json:"url"`
	Actor *activitypub.RemoteActor `json:"actor"`
}
