package handlers

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spacemonkeygo/httpsig"
	"github.com/stretchr/testify/assert"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/service/actor"
	"uk.co.dudmesh.hive/internal/service/federation"
	"uk.co.dudmesh.hive/internal/service/user"
	"uk.co.dudmesh.hive/internal/store"
	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/crypt"
	"uk.co.dudmesh.hive/pkg/identifier"
	"uk.co.dudmesh.hive/pkg/transport"
	"uk.co.dudmesh.hive/pkg/webfinger"
)

const remoteActorDocument = `{
	"@context": ["https://www.w3.org/ns/activitystreams", "https://w3id.org/security/v1"],
	"id": %[1]q,
	"type": "Person",
	"preferredUsername": "bob",
	"inbox": "%[1]s/inbox",
	"outbox": "https://example.com/outbox",
	"publicKey": {
		"id": "%[1]s#main-key",
		"owner": %[2]q,
		"publicKeyPem": %[3]q
	}
}`

type testConfig struct {
	dsn string
}

func (c testConfig) DatabaseDriver() string { return store.DriverSQLite }
func (c testConfig) DatabaseDSN() string    { return c.dsn }
func (c testConfig) Host() string           { return "hive.social" }
func (c testConfig) LocalBaseURL() string   { return "https://hive.social" }

type fakeGetter struct {
	responses map[string]string
}

func (f *fakeGetter) Get(_ context.Context, url string, _ map[string]string) (int, []byte, error) {
	body, ok := f.responses[url]
	if !ok {
		return http.StatusNotFound, nil, nil
	}
	return http.StatusOK, []byte(body), nil
}

type accepted struct {
	user   string
	follow string
	inbox  string
}

type fakeDelivery struct {
	accepted []accepted
}

func (f *fakeDelivery) Accept(_ context.Context, user *model.User, follow *model.Activity, inbox string) error {
	f.accepted = append(f.accepted, accepted{user.Name, follow.ID, inbox})
	return nil
}

type remote struct {
	url string
	key *rsa.PrivateKey
}

type testServer struct {
	echo     *echo.Echo
	getter   *fakeGetter
	delivery *fakeDelivery
	alice    *model.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	config := testConfig{"file:" + filepath.Join(t.TempDir(), "hive.db")}
	db, err := store.Open(config)
	if err != nil {
		t.Fatalf("opening store: %+v", err)
	}
	t.Cleanup(func() { db.Close() })

	getter := &fakeGetter{map[string]string{}}
	delivery := &fakeDelivery{}
	userService := user.New(config, db)
	builder := actor.NewBuilder(db)
	resolver := federation.New(config, db, builder, webfinger.NewResolver(getter), activitypub.NewFetcher(getter))

	alice, err := userService.Create(context.Background(), &model.CreateUserParams{Name: "alice", Password: "password"})
	if err != nil {
		t.Fatalf("creating user: %+v", err)
	}

	e := echo.New()
	e.GET("/.well-known/webfinger", WebFinger(config, userService))
	e.GET("/users/:name", Actor(userService, builder))
	e.GET("/users/:name/followers", Followers(userService, db))
	e.POST("/users/:name/inbox", Inbox(userService, resolver, db, delivery))
	e.POST("/local/user", CreateUser(userService))
	e.GET("/api/v1/resolve", Resolve(resolver))
	e.POST("/local/user/:name/keys", RotateKeys(userService))
	e.GET("/healthz", Health(db))

	return &testServer{e, getter, delivery, alice}
}

// addRemote serves an actor document for url whose key claims owner.
func (s *testServer) addRemote(t *testing.T, url string, owner string) *remote {
	t.Helper()
	publicKeyPem, privateKeyPem, err := crypt.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generating key pair: %+v", err)
	}
	key, err := crypt.DecodePrivateKey(privateKeyPem)
	if err != nil {
		t.Fatalf("decoding key: %+v", err)
	}
	s.getter.responses[url] = fmt.Sprintf(remoteActorDocument, url, owner, publicKeyPem)
	return &remote{url, key}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func signedRequest(t *testing.T, target string, body []byte, keyID string, key *rsa.PrivateKey, date time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, activitypub.ContentTypeActivityJSON)
	req.Header.Set("Date", date.UTC().Format(http.TimeFormat))
	digest := sha256.Sum256(body)
	req.Header.Set("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(digest[:]))
	if err := transport.Sign(httpsig.NewRSASHA256Signer(keyID, key, transport.SignedHeaders), req); err != nil {
		t.Fatalf("signing request: %+v", err)
	}
	return req
}

func follow(actor string, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":"%s/follows/1","type":"Follow","actor":%q,"object":%q}`, actor, actor, object))
}

func TestWebFinger(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	t.Run("Local account", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@hive.social", nil))
		assert.Equal(http.StatusOK, rec.Code)
		assert.Equal(webfinger.ContentTypeJRD, rec.Header().Get(echo.HeaderContentType))

		res := &webfinger.Response{}
		assert.Nil(json.Unmarshal(rec.Body.Bytes(), res))
		assert.Equal("acct:alice@hive.social", res.Subject)
		if assert.NotEmpty(res.Links) {
			assert.Equal("self", res.Links[0].Rel)
			assert.Equal("https://hive.social/users/alice", res.Links[0].Href)
		}
	})

	t.Run("Resolvable by the resolver", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@hive.social", nil))
		getter := &fakeGetter{map[string]string{
			webfinger.URL("alice@hive.social"): rec.Body.String(),
		}}
		url, err := webfinger.NewResolver(getter).Resolve(context.Background(), "alice@hive.social")
		assert.Nil(err)
		assert.Equal(identifier.ActorURL("https://hive.social/users/alice"), url)
	})

	t.Run("Unknown account", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:nobody@hive.social", nil))
		assert.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("Other domain", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@example.com", nil))
		assert.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("Bad resource", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=alice", nil))
		assert.Equal(http.StatusBadRequest, rec.Code)
	})
}

func TestActor(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	t.Run("Document", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/users/alice", nil))
		assert.Equal(http.StatusOK, rec.Code)
		assert.Equal(activitypub.ContentTypeActivityJSON, rec.Header().Get(echo.HeaderContentType))

		doc, err := activitypub.ParseActor(rec.Body.Bytes())
		assert.Nil(err)
		if doc != nil {
			_, err = activitypub.ValidateKeyOwnership("https://hive.social/users/alice", doc)
			assert.Nil(err)
			assert.Equal(s.alice.Inbox, doc.InboxURL)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/users/nobody", nil))
		assert.Equal(http.StatusNotFound, rec.Code)
	})
}

func TestCreateUser(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/local/user", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return s.do(req)
	}

	rec := post(`{"name":"carol","displayName":"Carol","password":"secret"}`)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"federationId":"https://hive.social/users/carol"`)
	assert.NotContains(rec.Body.String(), "secret")

	assert.Equal(http.StatusConflict, post(`{"name":"carol"}`).Code)
	assert.Equal(http.StatusBadRequest, post(`{"name":"42"}`).Code)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/users/carol", nil))
	assert.Equal(http.StatusOK, rec.Code)
}

func TestRotateKeys(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	rotate := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/local/user/alice/keys", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return s.do(req)
	}

	publicKeyPem := func() string {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/users/alice", nil))
		doc, err := activitypub.ParseActor(rec.Body.Bytes())
		assert.Nil(err)
		if doc == nil {
			return ""
		}
		return doc.PublicKey.PublicKeyPem
	}

	before := publicKeyPem()

	assert.Equal(http.StatusUnauthorized, rotate(`{"password":"wrong"}`).Code)
	assert.Equal(before, publicKeyPem())

	rec := rotate(`{"password":"password"}`)
	assert.Equal(http.StatusOK, rec.Code)
	res := &rotateKeysResponse{}
	assert.Nil(json.Unmarshal(rec.Body.Bytes(), res))
	assert.NotEqual(before, res.PublicKeyPem)
	assert.Equal(res.PublicKeyPem, publicKeyPem())
}

func TestHealth(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("ok", rec.Body.String())
}

func TestInbox(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)
	now := time.Now()

	inbox := "https://hive.social/users/alice/inbox"
	bob := s.addRemote(t, "https://example.com/users/bob", "https://example.com/users/bob")
	mallory := s.addRemote(t, "https://example.com/users/mallory", "https://evil.example/users/mallory")

	followerCount := func() int {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/users/alice/followers", nil))
		collection := &activitypub.OrderedCollection{}
		assert.Nil(json.Unmarshal(rec.Body.Bytes(), collection))
		return collection.TotalItems
	}

	t.Run("Unsigned", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, inbox, bytes.NewReader(follow(bob.url, s.alice.FederationID)))
		assert.Equal(http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("Follow signed in Signature header", func(t *testing.T) {
		body := follow(bob.url, s.alice.FederationID)
		req := signedRequest(t, inbox, body, bob.url+"#main-key", bob.key, now)
		assert.Contains(req.Header.Get("Signature"), `keyId="`+bob.url+`#main-key"`)
		assert.Empty(req.Header.Get("Authorization"))

		rec := s.do(req)
		assert.Equal(http.StatusAccepted, rec.Code)
		assert.Equal(1, followerCount())
		assert.Equal([]accepted{{"alice", bob.url + "/follows/1", bob.url + "/inbox"}}, s.delivery.accepted)
	})

	t.Run("Follow signed in Authorization header", func(t *testing.T) {
		body := follow(bob.url, s.alice.FederationID)
		req := signedRequest(t, inbox, body, bob.url+"#main-key", bob.key, now)
		req.Header.Set("Authorization", "Signature "+req.Header.Get("Signature"))
		req.Header.Del("Signature")

		rec := s.do(req)
		assert.Equal(http.StatusAccepted, rec.Code)
		assert.Equal(1, followerCount())
	})

	t.Run("Sender mismatch", func(t *testing.T) {
		body := follow("https://example.com/users/carol", s.alice.FederationID)
		rec := s.do(signedRequest(t, inbox, body, bob.url+"#main-key", bob.key, now))
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("Evil owner", func(t *testing.T) {
		body := follow(mallory.url, s.alice.FederationID)
		rec := s.do(signedRequest(t, inbox, body, mallory.url+"#main-key", mallory.key, now))
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("Wrong key", func(t *testing.T) {
		body := follow(bob.url, s.alice.FederationID)
		rec := s.do(signedRequest(t, inbox, body, bob.url+"#main-key", mallory.key, now))
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("Unknown signer", func(t *testing.T) {
		body := follow("https://example.com/users/ghost", s.alice.FederationID)
		rec := s.do(signedRequest(t, inbox, body, "https://example.com/users/ghost#main-key", bob.key, now))
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("Tampered body", func(t *testing.T) {
		req := signedRequest(t, inbox, follow(bob.url, s.alice.FederationID), bob.url+"#main-key", bob.key, now)
		req.Body = io.NopCloser(strings.NewReader(`{"type":"Delete"}`))
		assert.Equal(http.StatusUnauthorized, s.do(req).Code)
	})

	t.Run("Stale date", func(t *testing.T) {
		body := follow(bob.url, s.alice.FederationID)
		rec := s.do(signedRequest(t, inbox, body, bob.url+"#main-key", bob.key, now.Add(-2*MaxClockSkew)))
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})

	t.Run("Undo follow", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"id":"%[1]s/undo/1","type":"Undo","actor":%[1]q,"object":%[2]s}`,
			bob.url, follow(bob.url, s.alice.FederationID)))
		rec := s.do(signedRequest(t, inbox, body, bob.url+"#main-key", bob.key, now))
		assert.Equal(http.StatusAccepted, rec.Code)
		assert.Equal(0, followerCount())
	})

	t.Run("Unknown account", func(t *testing.T) {
		body := follow(bob.url, "https://hive.social/users/nobody")
		rec := s.do(signedRequest(t, "https://hive.social/users/nobody/inbox", body, bob.url+"#main-key", bob.key, now))
		assert.Equal(http.StatusNotFound, rec.Code)
	})
}

func TestResolve(t *testing.T) {
	assert := assert.New(t)
	s := newTestServer(t)

	s.addRemote(t, "https://example.com/users/bob", "https://example.com/users/bob")
	s.getter.responses[webfinger.URL("bob@example.com")] = `{"links":[{"rel":"self","href":"https://example.com/users/bob"}]}`
	s.addRemote(t, "https://example.com/users/mallory", "https://evil.example/users/mallory")

	resolve := func(q string) (*httptest.ResponseRecorder, *resolveResponse) {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/resolve?q="+q, nil))
		res := &resolveResponse{}
		json.Unmarshal(rec.Body.Bytes(), res)
		return rec, res
	}

	t.Run("Remote account", func(t *testing.T) {
		rec, res := resolve("bob@example.com")
		assert.Equal(http.StatusOK, rec.Code)
		assert.Equal("https://example.com/users/bob", res.ActorURL)
		assert.Equal("https://example.com/users/bob/inbox", res.Inbox)
		assert.False(res.Local)
	})

	t.Run("Local username", func(t *testing.T) {
		rec, res := resolve("alice")
		assert.Equal(http.StatusOK, rec.Code)
		assert.Equal(s.alice.FederationID, res.ActorURL)
		assert.True(res.Local)
	})

	t.Run("Not found", func(t *testing.T) {
		rec, _ := resolve("nobody")
		assert.Equal(http.StatusNotFound, rec.Code)
	})

	t.Run("Evil owner", func(t *testing.T) {
		rec, _ := resolve("https://example.com/users/mallory")
		assert.Equal(http.StatusBadGateway, rec.Code)
	})

	t.Run("Missing query", func(t *testing.T) {
		rec, _ := resolve("")
		assert.Equal(http.StatusBadRequest, rec.Code)
	})
}
