package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"uk.co.dudmesh.hive/internal/model"
	"uk.co.dudmesh.hive/internal/service/user"
)

func CreateUser(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &model.CreateUserParams{}
		if err := c.Bind(params); err != nil {
			return err
		}
		u, err := userService.Create(c.Request().Context(), params)
		if err != nil {
			switch {
			case errors.Is(err, user.ErrorInvalidUsername):
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			case errors.Is(err, model.ErrorUserExists):
				return echo.NewHTTPError(http.StatusConflict, err.Error())
			}
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
}

type rotateKeysParams struct {
	Password string `json:"password"`
}

type rotateKeysResponse struct {
	PublicKeyPem string `json:"publicKeyPem"`
}

// RotateKeys replaces the signing key of an account whose password is given.
func RotateKeys(userService UserService) echo.HandlerFunc {
	return func(c echo.Context) error {
		params := &rotateKeysParams{}
		if err := c.Bind(params); err != nil {
			return err
		}
		keys, err := userService.RotateKeys(c.Request().Context(), c.Param("name"), params.Password)
		if err != nil {
			if errors.Is(err, model.ErrorInvalidUsernameOrPassword) {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			return err
		}
		return c.JSON(http.StatusOK, &rotateKeysResponse{keys.PublicKeyPem})
	}
}
