package handlers

import (
	"errors"
	"net/http"

	"github.com/cr4all/supportservices/services"
	"github.com/labstack/echo/v4"
)

// respondError maps service errors onto the HTTP error contract. Anything
// unexpected is logged and answered with the generic fallback message.
func respondError(c echo.Context, err error, fallback string) error {
	switch {
	case services.IsValidation(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func operatorRequired(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Operator authentication required"})
}
