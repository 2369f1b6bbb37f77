package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/service/actor"
	"uk.co.dudmesh.hive/internal/service/federation"
	"uk.co.dudmesh.hive/pkg/activitypub"
	"uk.co.dudmesh.hive/pkg/webfinger"
)

type Config interface {
	Host() string
}

type UserService interface {
	Create(ctx context.Context, params *model.CreateUserParams) (*model.User, error)
	FetchByName(ctx context.Context, name string) (*model.User, error)
	RotateKeys(ctx context.Context, name string, password string) (*model.SigningKeyPair, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type ActorBuilder interface {
	Build(ctx context.Context, user *model.User) (*activitypub.Person, error)
}

type Resolver interface {
	Resolve(ctx context.Context, input string) (*federation.Resolution, error)
	TrustedKeyFor(ctx context.Context, keyID string) (*federation.Resolution, error)
}

type FollowerStore interface {
	AddFollower(ctx context.Context, follower *model.Follower) error
	RemoveFollower(ctx context.Context, userID model.UserID, federationID string, at time.Time) error
	Followers(ctx context.Context, userID model.UserID) ([]model.Follower, error)
}

type Delivery interface {
	Accept(ctx context.Context, user *model.User, follow *model.Activity, inbox string) error
}

// blob writes v as JSON with a media type echo's c.JSON would overwrite.
func blob(c echo.Context, code int, contentType string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return c.Blob(code, contentType, body)
}

// httpError maps service errors onto responses. Failures of a remote server
// are reported as a bad gateway.
func httpError(err error) error {
	var statusErr *activitypub.HTTPStatusError
	var mismatch *activitypub.OwnerMismatchError

	switch {
	case errors.Is(err, model.ErrorUserNotFound), errors.Is(err, webfinger.ErrorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, actor.ErrorNoSigningKey), errors.Is(err, model.ErrorNoKeyProvisioned):
		return echo.NewHTTPError(http.StatusNotFound, "account has no signing key")
	case errors.Is(err, federation.ErrorInvalidKeyID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &mismatch),
		errors.As(err, &statusErr),
		errors.Is(err, webfinger.ErrorNetwork),
		errors.Is(err, webfinger.ErrorMalformedResponse),
		errors.Is(err, activitypub.ErrorNetwork),
		errors.Is(err, activitypub.ErrorMalformedDocument):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return err
}
