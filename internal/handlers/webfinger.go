package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"uk.co.dudmesh.hive/pkg/webfinger"
)

// WebFinger answers discovery queries for local accounts.
func WebFinger(config Config, userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		account, ok := webfinger.ParseResource(c.QueryParam("resource"))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "resource must be acct:user@domain")
		}
		if !strings.EqualFold(account.Domain(), config.Host()) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}

		user, err := userService.FetchByName(c.Request().Context(), account.LocalPart())
		if err != nil {
			return httpError(err)
		}

		return blob(c, http.StatusOK, webfinger.ContentTypeJRD, webfinger.NewResponse(account, user.FederationID, user.URL))
	}
}
