// Package webfinger maps account handles to actor URLs (RFC 7033) and builds
// the JRD this node serves for its own accounts.
package webfinger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"uk.co.dudmesh.hive/pkg/identifier"
)

const (
	ContentTypeActivityJSON = "application/activity+json"
	ContentTypeJRD          = "application/jrd+json"
	RelSelf                 = "self"
	RelProfilePage          = "http://webfinger.net/rel/profile-page"
)

var (
	ErrorNotFound          = errors.New("webfinger: no self link")
	ErrorNetwork           = errors.New("webfinger: network failure")
	ErrorMalformedResponse = errors.New("webfinger: malformed response")
)

// Getter is the slice of an HTTP client the resolver needs.
type Getter interface {
	Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error)
}

type Response struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases,omitempty"`
	Links   []Link   `json:"links"`
}

type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

type Resolver struct {
	client Getter
}

func NewResolver(client Getter) *Resolver {
	return &Resolver{client}
}

// URL is the discovery endpoint queried for account. The resource parameter
// is sent exactly as acct:user@domain.
func URL(account identifier.Account) string {
	return fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s", account.Domain(), account)
}

// Resolve returns the href of the first link with rel "self". It makes a
// single request and never retries.
func (r *Resolver) Resolve(ctx context.Context, account identifier.Account) (identifier.ActorURL, error) {
	status, body, err := r.client.Get(ctx, URL(account), map[string]string{
		"Accept": ContentTypeActivityJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrorNetwork, err)
	}

	var doc struct {
		Links *[]Link `json:"links"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: status %d: %w", ErrorMalformedResponse, status, err)
	}
	if doc.Links == nil {
		return "", fmt.Errorf("%w: status %d: missing links", ErrorMalformedResponse, status)
	}

	for _, link := range *doc.Links {
		if link.Rel == RelSelf {
			return identifier.ActorURL(link.Href), nil
		}
	}

	return "", fmt.Errorf("%w for %s", ErrorNotFound, account)
}

// NewResponse builds the JRD served for a local account.
func NewResponse(account identifier.Account, actorURL string, profileURL string) *Response {
	r := &Response{
		Subject: "acct:" + string(account),
		Aliases: []string{actorURL},
		Links: []Link{
			{
				Rel:  RelSelf,
				Type: ContentTypeActivityJSON,
				Href: actorURL,
			},
		},
	}
	if profileURL != "" && profileURL != actorURL {
		r.Aliases = append(r.Aliases, profileURL)
		r.Links = append(r.Links, Link{
			Rel:  RelProfilePage,
			Type: "text/html",
			Href: profileURL,
		})
	}
	return r
}

// ParseResource extracts the account from a resource query parameter of the
// form acct:user@domain.
func ParseResource(resource string) (identifier.Account, bool) {
	const prefix = "acct:"
	if len(resource) <= len(prefix) || resource[:len(prefix)] != prefix {
		return "", false
	}
	account, ok := identifier.Classify(resource[len(prefix):]).(identifier.Account)
	return account, ok
}
