package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/skorenev/marketplace/internal/logging"
	"github.com/skorenev/marketplace/internal/service"
)

// errorCode maps orchestrator sentinels onto the wire taxonomy. Anything
// unrecognized is a 500 with a generic message; details stay in the log.
func errorCode(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrDuplicateUser):
		return http.StatusConflict, "DUPLICATE_USER", err.Error()
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error()
	case errors.Is(err, service.ErrRoleMismatch):
		return http.StatusForbidden, "ROLE_MISMATCH", err.Error()
	case errors.Is(err, service.ErrOAuthAccountRequired):
		return http.StatusUnauthorized, "OAUTH_ACCOUNT_REQUIRED", err.Error()
	case errors.Is(err, service.ErrEmailNotVerified):
		return http.StatusForbidden, "EMAIL_NOT_VERIFIED", err.Error()
	case errors.Is(err, service.ErrIncompleteProfile):
		return http.StatusBadRequest, "INCOMPLETE_PROFILE", err.Error()
	case errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized, "INVALID_TOKEN", err.Error()
	case errors.Is(err, service.ErrTokenRevoked):
		return http.StatusUnauthorized, "TOKEN_REVOKED", err.Error()
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED", err.Error()
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", err.Error()
	case errors.Is(err, service.ErrOAuthProvider):
		return http.StatusBadGateway, "OAUTH_PROVIDER_ERROR", "identity provider unavailable"
	}
	return http.StatusInternalServerError, "INTERNAL", "internal error"
}

func fail(c echo.Context, err error) error {
	ctx := c.Request().Context()
	status, code, msg := errorCode(err)

	l := logging.FromContext(ctx).With("status", status, "code", code)
	if status >= 500 {
		l.Error("request_failed", "error", err)
	} else {
		l.Warn("request_failed", "error", err)
	}

	return c.JSON(status, echo.Map{
		"success": false,
		"error":   echo.Map{"code": code, "message": msg},
	})
}

func failValidation(c echo.Context, fields map[string]string) error {
	logging.FromContext(c.Request().Context()).Warn("validation_failed", "fields", fields)
	return c.JSON(http.StatusBadRequest, echo.Map{
		"success": false,
		"error": echo.Map{
			"code":    "VALIDATION_ERROR",
			"message": "malformed request body",
			"fields":  fields,
		},
	})
}
