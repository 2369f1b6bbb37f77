// Package transport is the HTTP client used to talk to other servers.
package transport

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spacemonkeygo/httpsig"
)

const (
	DefaultUserAgent    = "hive/1.0"
	HeaderSignature     = "Signature"
	HeaderAuthorization = "Authorization"
	signatureScheme     = "Signature "
)

// SignedHeaders are the headers covered by outbound signatures, in the order
// Mastodon expects them.
var SignedHeaders = []string{"(request-target)", "host", "date", "digest"}

type signerKey struct{}

type Client struct {
	http *resty.Client
}

// New returns a client. Retries are disabled; retry policy belongs to the
// caller. A zero timeout leaves requests bounded only by their context.
func New(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetPreRequestHook(signRequest)

	return &Client{client}
}

// NewWithHTTPClient wraps an existing http.Client, e.g. one from
// httptest.Server.Client().
func NewWithHTTPClient(hc *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := resty.NewWithClient(hc).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetPreRequestHook(signRequest)

	return &Client{client}
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return 0, nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return res.StatusCode(), res.Body(), nil
}

// PostSigned sends body to url with an HTTP signature made with privateKey
// under keyID. Date and Digest are set here so they are covered by the
// signature.
func (c *Client) PostSigned(ctx context.Context, url string, contentType string, body []byte, keyID string, privateKey *rsa.PrivateKey) (int, []byte, error) {
	digest := sha256.Sum256(body)
	signer := httpsig.NewRSASHA256Signer(keyID, privateKey, SignedHeaders)

	res, err := c.http.R().
		SetContext(context.WithValue(ctx, signerKey{}, signer)).
		SetHeader("Content-Type", contentType).
		SetHeader("Accept", contentType).
		SetHeader("Date", time.Now().UTC().Format(http.TimeFormat)).
		SetHeader("Digest", "SHA-256="+base64.StdEncoding.EncodeToString(digest[:])).
		SetBody(body).
		Post(url)
	if err != nil {
		return 0, nil, fmt.Errorf("POST %s: %w", url, err)
	}
	return res.StatusCode(), res.Body(), nil
}

func signRequest(_ *resty.Client, req *http.Request) error {
	signer, ok := req.Context().Value(signerKey{}).(*httpsig.Signer)
	if !ok {
		return nil
	}
	return Sign(signer, req)
}

// Sign signs req and carries the parameters in the Signature header, which is
// where ActivityPub peers look for them.
func Sign(signer *httpsig.Signer, req *http.Request) error {
	if err := signer.Sign(req); err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	params := strings.TrimPrefix(req.Header.Get(HeaderAuthorization), signatureScheme)
	req.Header.Del(HeaderAuthorization)
	req.Header.Set(HeaderSignature, params)
	return nil
}

// AuthorizationFromSignature copies a Signature header into Authorization,
// the only place httpsig.Verifier reads parameters from.
func AuthorizationFromSignature(req *http.Request) {
	if req.Header.Get(HeaderAuthorization) != "" {
		return
	}
	if params := req.Header.Get(HeaderSignature); params != "" {
		req.Header.Set(HeaderAuthorization, signatureScheme+params)
	}
}
