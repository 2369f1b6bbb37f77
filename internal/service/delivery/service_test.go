package delivery

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/pkg/crypt"
)

type fakeKeys struct {
	pem string
}

func (f *fakeKeys) PrivateKeyByUserID(_ context.Context, id model.UserID) (string, error) {
	if id != 1 {
		return "", model.ErrorUserNotFound
	}
	if f.pem == "" {
		return "", model.ErrorNoKeyProvisioned
	}
	return f.pem, nil
}

type post struct {
	url         string
	contentType string
	body        []byte
	keyID       string
	key         *rsa.PrivateKey
}

type fakePoster struct {
	status int
	posts  []post
}

func (f *fakePoster) PostSigned(_ context.Context, url string, contentType string, body []byte, keyID string, privateKey *rsa.PrivateKey) (int, []byte, error) {
	f.posts = append(f.posts, post{url, contentType, body, keyID, privateKey})
	return f.status, nil, nil
}

func TestDeliver(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	_, privateKeyPem, err := crypt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %+v", err)
	}

	alice := &model.User{ID: 1, Name: "alice", FederationID: "https://hive.social/users/alice"}
	follow := &model.Activity{
		ID:     "https://example.com/activities/1",
		Type:   model.ActivityTypeFollow,
		Actor:  "https://example.com/users/bob",
		Object: json.RawMessage(`"https://hive.social/users/alice"`),
	}

	t.Run("Accept", func(t *testing.T) {
		poster := &fakePoster{status: http.StatusAccepted}
		svc := New(&fakeKeys{privateKeyPem}, poster)

		assert.Nil(svc.Accept(ctx, alice, follow, "https://example.com/users/bob/inbox"))
		if assert.Len(poster.posts, 1) {
			p := poster.posts[0]
			assert.Equal("https://example.com/users/bob/inbox", p.url)
			assert.Equal("application/activity+json", p.contentType)
			assert.Equal("https://hive.social/users/alice#main-key", p.keyID)
			assert.NotNil(p.key)

			accept := &model.Activity{}
			assert.Nil(json.Unmarshal(p.body, accept))
			assert.Equal(model.ActivityTypeAccept, accept.Type)
			assert.Equal(alice.FederationID, accept.Actor)
			assert.True(strings.HasPrefix(accept.ID, alice.FederationID+"#accepts/follows/"))
			assert.Equal(follow.ID, accept.ObjectID())
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		poster := &fakePoster{status: http.StatusUnauthorized}
		svc := New(&fakeKeys{privateKeyPem}, poster)

		err := svc.Deliver(ctx, alice, "https://example.com/inbox", follow)
		var statusErr *StatusError
		if assert.True(errors.As(err, &statusErr)) {
			assert.Equal(http.StatusUnauthorized, statusErr.Code)
		}
	})

	t.Run("No key", func(t *testing.T) {
		poster := &fakePoster{status: http.StatusAccepted}
		svc := New(&fakeKeys{}, poster)

		err := svc.Deliver(ctx, alice, "https://example.com/inbox", follow)
		assert.True(errors.Is(err, model.ErrorNoKeyProvisioned))
		assert.Empty(poster.posts)
	})
}
