package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skorenev/marketplace/internal/tokens"
)

const (
	CtxUserID = "userID"
	CtxRole   = "role"
	CtxEmail  = "email"
)

// RequireAuth accepts the access token from the accessToken cookie or an
// Authorization bearer header and stamps the caller's identity into the echo
// context.
func RequireAuth(codec *tokens.Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if cookie, err := c.Cookie("accessToken"); err == nil {
				raw = cookie.Value
			}
			if raw == "" {
				header := c.Request().Header.Get(echo.HeaderAuthorization)
				if strings.HasPrefix(header, "Bearer ") {
					raw = strings.TrimPrefix(header, "Bearer ")
				}
			}
			if raw == "" {
				return unauthorized(c, "missing access token")
			}

			claims, err := codec.ParseAccess(raw)
			if err != nil {
				return unauthorized(c, "invalid access token")
			}
			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return unauthorized(c, "invalid access token")
			}

			c.Set(CtxUserID, userID)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxEmail, claims.Email)
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{
		"success": false,
		"error": echo.Map{
			"code":    "INVALID_TOKEN",
			"message": msg,
		},
	})
}
