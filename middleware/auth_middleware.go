package middleware

import (
	"net/http"
	"strings"

	"github.com/cr4all/supportservices/models"
	"github.com/cr4all/supportservices/services"
	"github.com/labstack/echo/v4"
)

const operatorKey = "operator"

// OptionalOperator resolves the operator behind a bearer token, taken
// from the Authorization header or the token query parameter (browsers
// cannot set headers on websocket upgrades). Requests without a token
// pass through anonymously; a token that does not resolve is rejected.
func OptionalOperator(authService *services.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var tokenString string
			if authHeader := c.Request().Header.Get(echo.HeaderAuthorization); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					return c.JSON(http.StatusUnauthorized, map[string]string{
						"error": "invalid authorization header",
					})
				}
				tokenString = parts[1]
			} else {
				tokenString = strings.TrimSpace(strings.TrimPrefix(c.QueryParam("token"), "Bearer "))
			}
			if tokenString == "" {
				return next(c)
			}

			operator, err := authService.Authenticate(c.Request().Context(), tokenString)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "invalid token",
				})
			}
			c.Set(operatorKey, operator)
			return next(c)
		}
	}
}

// OperatorFrom returns the operator resolved for the request, or nil.
func OperatorFrom(c echo.Context) *models.Operator {
	operator, _ := c.Get(operatorKey).(*models.Operator)
	return operator
}
