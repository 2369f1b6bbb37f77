package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"uk.co.dudmesh.hive/pkg/identifier"
)

var (
	ErrorMalformedDocument = errors.New("activitypub: malformed actor document")
	ErrorNetwork           = errors.New("activitypub: network failure")
)

type HTTPStatusError struct {
	URL  string
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("activitypub: fetching %s: unexpected status %d", e.URL, e.Code)
}

// Getter is the slice of an HTTP client the fetcher needs.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error)
}

// ActorFetcher is satisfied by Fetcher and by CachingFetcher.
type ActorFetcher interface {
	Fetch(ctx context.Context, url identifier.ActorURL) (*RemoteActor, error)
}

type Fetcher struct {
	client Getter
}

func NewFetcher(client Getter) *Fetcher {
	return &Fetcher{client}
}

// Fetch dereferences url and parses the actor document. It neither caches
// nor verifies the document; trust comes from ValidateKeyOwnership.
func (f *Fetcher) Fetch(ctx context.Context, url identifier.ActorURL) (*RemoteActor, error) {
	status, body, err := f.client.Get(ctx, string(url), map[string]string{
		"Accept": ContentTypeActivityJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrorNetwork, err)
	}
	if status != http.StatusOK {
		return nil, &HTTPStatusError{URL: string(url), Code: status}
	}

	return ParseActor(body)
}

// ParseActor decodes an actor document, requiring the fields needed to
// address and authenticate the actor.
func ParseActor(body []byte) (*RemoteActor, error) {
	actor := &RemoteActor{}
	if err := json.Unmarshal(body, actor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrorMalformedDocument, err)
	}

	switch {
	case actor.PublicKey.Owner == "":
		return nil, fmt.Errorf("%w: missing publicKey.owner", ErrorMalformedDocument)
	case actor.PublicKey.PublicKeyPem == "":
		return nil, fmt.Errorf("%w: missing publicKey.publicKeyPem", ErrorMalformedDocument)
	case actor.InboxURL == "":
		return nil, fmt.Errorf("%w: missing inbox", ErrorMalformedDocument)
	}

	return actor, nil
}
