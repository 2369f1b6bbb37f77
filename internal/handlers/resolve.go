package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type resolveResponse struct {
	Query        string    `json:"query"`
	ActorURL     string    `json:"actorUrl"`
	Inbox        string    `json:"inbox"`
	PublicKeyPem string    `json:"publicKeyPem"`
	VerifiedAt   time.Time `json:"verifiedAt"`
	Local        bool      `json:"local"`
}

// Resolve runs the resolution pipeline for q and reports the trusted key.
func Resolve(resolver Resolver) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := c.QueryParam("q")
		if q == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing q")
		}

		res, err := resolver.Resolve(c.Request().Context(), q)
		if err != nil {
			return httpError(err)
		}

		return c.JSON(http.StatusOK, &resolveResponse{
			Query:        q,
			ActorURL:     res.Key.ActorURL,
			Inbox:        res.Actor.InboxURL,
			PublicKeyPem: res.Key.PublicKeyPem,
			VerifiedAt:   res.Key.VerifiedAt,
			Local:        res.Local,
		})
	}
}
