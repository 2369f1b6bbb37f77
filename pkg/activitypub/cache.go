package activitypub

import (
	"context"

	"github.com/labstack/gommon/log"

	"uk.co.dudmesh.hive/pkg/identifier"
)

// ActorCache stores fetched actors keyed by actor URL. Get returns (nil, nil)
// on a miss; expiry is the implementation's concern.
type ActorCache interface {
	Get(ctx context.Context, url identifier.ActorURL) (*RemoteActor, error)
	Set(ctx context.Context, url identifier.ActorURL, actor *RemoteActor) error
}

// CachingFetcher sits in front of another fetcher. A cached document is
// returned as-is; callers still run ValidateKeyOwnership on it.
type CachingFetcher struct {
	next  ActorFetcher
	cache ActorCache
}

func NewCachingFetcher(next ActorFetcher, cache ActorCache) *CachingFetcher {
	return &CachingFetcher{next, cache}
}

func (f *CachingFetcher) Fetch(ctx context.Context, url identifier.ActorURL) (*RemoteActor, error) {
	actor, err := f.cache.Get(ctx, url)
	if err != nil {
		log.Warnf("reading actor cache for %s: %+v", url, err)
	}
	if actor != nil {
		return actor, nil
	}

	actor, err = f.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(ctx, url, actor); err != nil {
		log.Warnf("writing actor cache for %s: %+v", url, err)
	}

	return actor, nil
}
