package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"uk.co.dudmesh.hive/pkg/activitypub"
)

func Actor(userService UserService, builder ActorBuilder) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		user, err := userService.FetchByName(ctx, c.Param("name"))
		if err != nil {
			return httpError(err)
		}

		doc, err := builder.Build(ctx, user)
		if err != nil {
			return httpError(err)
		}

		return blob(c, http.StatusOK, activitypub.ContentTypeActivityJSON, doc)
	}
}

func Followers(userService UserService, followers FollowerStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		user, err := userService.FetchByName(ctx, c.Param("name"))
		if err != nil {
			return httpError(err)
		}

		active, err := followers.Followers(ctx, user.ID)
		if err != nil {
			return err
		}

		items := make([]string, 0, len(active))
		for _, f := range active {
			items = append(items, f.FederationID)
		}

		return blob(c, http.StatusOK, activitypub.ContentTypeActivityJSON, activitypub.NewOrderedCollection(user.Followers, items))
	}
}
