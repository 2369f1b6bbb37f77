package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/gommon/log"
	_ "github.com/mattn/go-sqlite3"

	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/identifier"
)

const ActorCacheDSN = "file:actorcache.db?mode=memory&cache=shared"

type actorCache struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewActorCache keeps fetched actors in sqlite for ttl.
func NewActorCache(dsn string, ttl time.Duration) (*actorCache, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	cache := &actorCache{db, ttl, time.Now}
	if err := cache.init(); err != nil {
		db.Close()
		return nil, err
	}

	return cache, nil
}

func (s *actorCache) init() error {
	_, err := s.db.Exec(`create table if not exists actor_cache (
		actor_url  text primary key,
		actor      text not null,
		expires_at integer not null
	)`)
	if err != nil {
		return fmt.Errorf("creating actor cache table: %w", err)
	}
	return nil
}

func (s *actorCache) Close() error {
	return s.db.Close()
}

func (s *actorCache) Get(ctx context.Context, url identifier.ActorURL) (*activitypub.RemoteActor, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `select actor from actor_cache where actor_url = ? and expires_at > ?`,
		string(url), s.now().UnixNano())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting actor from cache: %w", err)
	}

	actor := &activitypub.RemoteActor{}
	if err := json.Unmarshal([]byte(raw), actor); err != nil {
		return nil, fmt.Errorf("decoding cached actor: %w", err)
	}
	return actor, nil
}

func (s *actorCache) Set(ctx context.Context, url identifier.ActorURL, actor *activitypub.RemoteActor) error {
	raw, err := json.Marshal(actor)
	if err != nil {
		return fmt.Errorf("encoding actor: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `insert into actor_cache (actor_url, actor, expires_at) values (?, ?, ?)
		on conflict (actor_url) do update set actor = excluded.actor, expires_at = excluded.expires_at`,
		string(url), string(raw), s.now().Add(s.ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("setting actor in cache: %w", err)
	}
	return nil
}

// Sweep deletes expired entries and returns how many were removed.
func (s *actorCache) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from actor_cache where expires_at <= ?`, s.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweeping actor cache: %w", err)
	}
	return res.RowsAffected()
}

// Run sweeps every interval until ctx is done.
func (s *actorCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				log.Errorf("actor cache: %+v", err)
				continue
			}
			if removed > 0 {
				log.Debugf("actor cache: removed %d expired entries", removed)
			}
		}
	}
}
