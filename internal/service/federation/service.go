// Package federation resolves any reference to a person into a trusted actor:
// classify, discover through WebFinger when needed, fetch the actor document
// and check that its key belongs to the URL it was fetched from.
package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/service/actor"
	"uk.co.dudmesh.hive/internal/store"
	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/identifier"
	"uk.co.dudmesh.hive/pkg/webfinger"
)

var ErrorInvalidKeyID = errors.New("federation: key id is not a URL")

var resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hive_resolutions_total",
	Help: "Identity resolutions by identifier kind and outcome.",
}, []string{"kind", "outcome"})

type Config interface {
	Host() string
	LocalBaseURL() string
}

type Users interface {
	UserBy(ctx context.Context, sel store.Selector) (*model.User, error)
}

type ActorBuilder interface {
	Build(ctx context.Context, user *model.User) (*activitypub.Person, error)
}

type Discoverer interface {
	Resolve(ctx context.Context, account identifier.Account) (identifier.ActorURL, error)
}

// Resolution is the outcome of a successful resolution. Key is always set and
// its ActorURL equals Actor.ActorURL.
type Resolution struct {
	Identifier identifier.Identifier
	Actor      *activitypub.RemoteActor
	Key        *activitypub.TrustedKeyRecord
	Local      bool
}

type service struct {
	config     Config
	users      Users
	builder    ActorBuilder
	discoverer Discoverer
	fetcher    activitypub.ActorFetcher
}

func New(config Config, users Users, builder ActorBuilder, discoverer Discoverer, fetcher activitypub.ActorFetcher) *service {
	return &service{
		config:     config,
		users:      users,
		builder:    builder,
		discoverer: discoverer,
		fetcher:    fetcher,
	}
}

// Resolve classifies input and resolves it.
func (s *service) Resolve(ctx context.Context, input string) (*Resolution, error) {
	return s.ResolveIdentifier(ctx, identifier.Classify(input))
}

func (s *service) ResolveIdentifier(ctx context.Context, id identifier.Identifier) (*Resolution, error) {
	res, err := s.resolve(ctx, id)
	resolutions.WithLabelValues(kind(id), outcome(err)).Inc()
	if err != nil {
		log.Debugf("resolving %s: %+v", id, err)
		return nil, err
	}
	return res, nil
}

// TrustedKeyFor resolves the signer of an inbound request from the keyId of
// its signature.
func (s *service) TrustedKeyFor(ctx context.Context, keyID string) (*Resolution, error) {
	url, ok := identifier.Classify(keyID).(identifier.ActorURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrorInvalidKeyID, keyID)
	}
	return s.ResolveIdentifier(ctx, url.WithoutFragment())
}

func (s *service) resolve(ctx context.Context, id identifier.Identifier) (*Resolution, error) {
	switch id := id.(type) {
	case identifier.UserID:
		return s.resolveLocal(ctx, id, store.ByUserID(model.UserID(id)))

	case identifier.Username:
		return s.resolveLocal(ctx, id, store.ByUsername(string(id)))

	case identifier.Account:
		if strings.EqualFold(id.Domain(), s.config.Host()) {
			return s.resolveLocal(ctx, id, store.ByUsername(id.LocalPart()))
		}
		url, err := s.discoverer.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("discovering %s: %w", id, err)
		}
		return s.resolveRemote(ctx, id, url)

	case identifier.ActorURL:
		if s.isLocal(id) {
			return s.resolveLocal(ctx, id, store.ByFederationID(string(id)))
		}
		return s.resolveRemote(ctx, id, id)
	}

	return nil, fmt.Errorf("unsupported identifier %T", id)
}

func (s *service) isLocal(url identifier.ActorURL) bool {
	return strings.HasPrefix(string(url), s.config.LocalBaseURL()+"/")
}

func (s *service) resolveRemote(ctx context.Context, id identifier.Identifier, url identifier.ActorURL) (*Resolution, error) {
	remote, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}

	key, err := activitypub.ValidateKeyOwnership(url, remote)
	if err != nil {
		return nil, err
	}

	return &Resolution{Identifier: id, Actor: remote, Key: key}, nil
}

// resolveLocal builds the document of a local account and puts it through
// the same ownership check as a fetched one.
func (s *service) resolveLocal(ctx context.Context, id identifier.Identifier, sel store.Selector) (*Resolution, error) {
	user, err := s.users.UserBy(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("fetching local user %s: %w", sel, err)
	}

	doc, err := s.builder.Build(ctx, user)
	if err != nil {
		return nil, err
	}

	local := doc.AsRemoteActor()
	key, err := activitypub.ValidateKeyOwnership(identifier.ActorURL(user.FederationID), local)
	if err != nil {
		return nil, err
	}

	return &Resolution{Identifier: id, Actor: local, Key: key, Local: true}, nil
}

func kind(id identifier.Identifier) string {
	switch id.(type) {
	case identifier.UserID:
		return "user_id"
	case identifier.Username:
		return "username"
	case identifier.Account:
		return "account"
	case identifier.ActorURL:
		return "actor_url"
	}
	return "unknown"
}

func outcome(err error) string {
	var statusErr *activitypub.HTTPStatusError
	var mismatch *activitypub.OwnerMismatchError

	switch {
	case err == nil:
		return "trusted"
	case errors.As(err, &mismatch):
		return "owner_mismatch"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.Is(err, webfinger.ErrorNotFound), errors.Is(err, model.ErrorUserNotFound):
		return "not_found"
	case errors.Is(err, webfinger.ErrorNetwork), errors.Is(err, activitypub.ErrorNetwork):
		return "network"
	case errors.Is(err, webfinger.ErrorMalformedResponse), errors.Is(err, activitypub.ErrorMalformedDocument):
		return "malformed"
	case errors.Is(err, actor.ErrorNoSigningKey):
		return "no_signing_key"
	}
	return "error"
}
