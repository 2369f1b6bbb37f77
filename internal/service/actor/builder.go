// Package actor projects local accounts onto the actor documents other
// servers fetch and validate.
package actor

import (
	"context"
	"errors"
	"fmt"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/store"
	"uk.co.dudmesh.hive/pkg/activitypub"
)

var ErrorNoSigningKey = errors.New("actor: no signing key")

const (
	TypePerson     = "Person"
	TypeImage      = "Image"
	ImageMediaType = "image/jpeg"
)

type KeyStore interface {
	KeyPairFor(ctx context.Context, sel store.Selector) (*model.SigningKeyPair, error)
}

type Builder struct {
	keys KeyStore
}

func NewBuilder(keys KeyStore) *Builder {
	return &Builder{keys}
}

// Build renders the document for user. The document is derived from user and
// its key pair on every call and never stored.
func (b *Builder) Build(ctx context.Context, user *model.User) (*activitypub.Person, error) {
	keys, err := b.keys.KeyPairFor(ctx, store.ByUserID(user.ID))
	if err != nil {
		if errors.Is(err, model.ErrorNoKeyProvisioned) {
			return nil, fmt.Errorf("%w for %s", ErrorNoSigningKey, user.Name)
		}
		return nil, fmt.Errorf("fetching key pair for %s: %w", user.Name, err)
	}

	return &activitypub.Person{
		Context:                   []string{activitypub.ActivityStreamsContext, activitypub.SecurityContext},
		ID:                        user.FederationID,
		Type:                      TypePerson,
		Following:                 user.Following,
		Followers:                 user.Followers,
		Inbox:                     user.Inbox,
		Outbox:                    user.Outbox,
		Featured:                  user.Featured,
		FeaturedTags:              user.FeaturedTags,
		PreferredUsername:         user.Name,
		Name:                      user.DisplayName,
		Summary:                   user.Summary,
		URL:                       user.URL,
		ManuallyApprovesFollowers: user.ManuallyApprovesFollowers,
		Discoverable:              user.Discoverable,
		Indexable:                 user.Indexable,
		Published:                 user.Published.UTC().Format(activitypub.PublishedFormat),
		PublicKey: activitypub.PublicKey{
			ID:           user.FederationID + activitypub.MainKeyFragment,
			Owner:        user.FederationID,
			PublicKeyPem: keys.PublicKeyPem,
		},
		Tag:        []interface{}{},
		Attachment: []interface{}{},
		Icon:       image(user.IconLocation),
		Image:      image(user.ImageLocation),
	}, nil
}

func image(location string) activitypub.Image {
	return activitypub.Image{
		Type:      TypeImage,
		MediaType: ImageMediaType,
		URL:       location,
	}
}
