package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spacemonkeygo/httpsig"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/service/federation"
	"uk.co.dudmesh.hive/pkg/crypt"
	"uk.co.dudmesh.hive/pkg/transport"
)

// MaxClockSkew bounds how far the Date of a signed request may be from now.
const MaxClockSkew = 12 * time.Hour

var (
	ErrorMissingSignature = errors.New("missing signature")
	ErrorDigestMismatch   = errors.New("digest does not match body")
	ErrorStaleDate        = errors.New("date outside accepted window")
)

var inboundAuthentications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "hive_inbound_authentications_total",
	Help: "Signed inbox requests by authentication outcome.",
}, []string{"outcome"})

// signerKeys hands the verifier the key of whoever the keyId names, resolved
// and trusted through the federation pipeline.
type signerKeys struct {
	ctx      context.Context
	resolver Resolver
	signer   *federation.Resolution
	err      error
}

func (k *signerKeys) GetKey(id string) interface{} {
	res, err := k.resolver.TrustedKeyFor(k.ctx, id)
	if err != nil {
		k.err = err
		return nil
	}
	key, err := crypt.DecodePublicKey(res.Key.PublicKeyPem)
	if err != nil {
		k.err = fmt.Errorf("decoding key of %s: %w", res.Key.ActorURL, err)
		return nil
	}
	k.signer = res
	return key
}

// authenticate verifies the HTTP signature of req over body and returns the
// trusted signer.
func authenticate(req *http.Request, body []byte, resolver Resolver, now time.Time) (*federation.Resolution, error) {
	if req.Header.Get(transport.HeaderSignature) == "" && req.Header.Get(transport.HeaderAuthorization) == "" {
		return nil, ErrorMissingSignature
	}

	date, err := http.ParseTime(req.Header.Get("Date"))
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}
	if skew := now.Sub(date); skew > MaxClockSkew || skew < -MaxClockSkew {
		return nil, ErrorStaleDate
	}

	digest := sha256.Sum256(body)
	if req.Header.Get("Digest") != "SHA-256="+base64.StdEncoding.EncodeToString(digest[:]) {
		return nil, ErrorDigestMismatch
	}

	transport.AuthorizationFromSignature(req)

	keys := &signerKeys{ctx: req.Context(), resolver: resolver}
	verifier := httpsig.NewVerifier(keys)
	verifier.SetRequiredHeaders(transport.SignedHeaders)
	if err := verifier.Verify(req); err != nil {
		if keys.err != nil {
			return nil, keys.err
		}
		return nil, fmt.Errorf("verifying signature: %w", err)
	}

	return keys.signer, nil
}

// Inbox accepts activities for a local account. Requests whose signer cannot
// be resolved and trusted, or whose activity claims a different actor than
// the signer, are rejected with 401 and never processed.
func Inbox(userService UserService, resolver Resolver, followers FollowerStore, delivery Delivery) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		user, err := userService.FetchByName(ctx, c.Param("name"))
		if err != nil {
			return httpError(err)
		}

		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return fmt.Errorf("reading request body: %w", err)
		}
		c.Request().Body = io.NopCloser(bytes.NewReader(body))

		signer, err := authenticate(c.Request(), body, resolver, time.Now())
		if err != nil {
			inboundAuthentications.WithLabelValues("rejected").Inc()
			log.Infof("inbox %s: rejecting request: %+v", user.Name, err)
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}

		activity := &model.Activity{}
		if err := json.Unmarshal(body, activity); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid activity")
		}

		if activity.Actor != signer.Key.ActorURL {
			inboundAuthentications.WithLabelValues("rejected").Inc()
			log.Infof("inbox %s: %+v: activity actor %s signed by %s", user.Name, model.ErrorSenderMismatch, activity.Actor, signer.Key.ActorURL)
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		inboundAuthentications.WithLabelValues("accepted").Inc()

		switch activity.Type {
		case model.ActivityTypeFollow:
			if activity.ObjectID() != user.FederationID {
				return echo.NewHTTPError(http.StatusBadRequest, "follow object is not this account")
			}
			follower := &model.Follower{
				ID:           model.CreateID(),
				UserID:       user.ID,
				FederationID: signer.Key.ActorURL,
				Inbox:        signer.Actor.InboxURL,
				Object:       body,
				FollowAt:     time.Now().UTC(),
			}
			if err := followers.AddFollower(ctx, follower); err != nil {
				return err
			}
			if err := delivery.Accept(ctx, user, activity, signer.Actor.InboxURL); err != nil {
				log.Warnf("inbox %s: accepting follow from %s: %+v", user.Name, signer.Key.ActorURL, err)
			}

		case model.ActivityTypeUndo:
			inner, err := activity.Embedded()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid undo object")
			}
			if inner.Type != model.ActivityTypeFollow {
				break
			}
			err = followers.RemoveFollower(ctx, user.ID, signer.Key.ActorURL, time.Now().UTC())
			if err != nil && !errors.Is(err, model.ErrorFollowerNotFound) {
				return err
			}

		default:
			log.Debugf("inbox %s: ignoring %s from %s", user.Name, activity.Type, activity.Actor)
		}

		return c.NoContent(http.StatusAccepted)
	}
}
