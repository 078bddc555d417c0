package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/skorenev/marketplace/internal/logging"
	mw "github.com/skorenev/marketplace/internal/middleware"
	"github.com/skorenev/marketplace/internal/models"
	"github.com/skorenev/marketplace/internal/service"
)

const stateCookieTTL = 10 * time.Minute

type AuthHandler struct {
	Svc     *service.AuthService
	Cookies CookieOptions
}

func clientMeta(c echo.Context) service.ClientMeta {
	return service.ClientMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func (h *AuthHandler) setSessionCookies(c echo.Context, s *service.Session) {
	c.SetCookie(h.Cookies.Create(accessCookie, s.AccessToken, "/", s.AccessExp))
	c.SetCookie(h.Cookies.Create(refreshCookie, s.RefreshToken, "/", s.RefreshExp))
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "invalid json"})
	}

	fields := map[string]string{}
	if !strings.Contains(req.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < 8 {
		fields["password"] = "must be at least 8 characters"
	}
	role, ok := models.ParseRole(strings.ToLower(req.Role))
	if !ok {
		fields["role"] = "must be one of customer, merchant, rider"
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	session, err := h.Svc.Register(c.Request().Context(), req.Email, req.Password, req.Name, role, clientMeta(c))
	if err != nil {
		return fail(c, err)
	}

	h.setSessionCookies(c, session)
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"user":        session.User,
		"accessToken": session.AccessToken,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "invalid json"})
	}

	fields := map[string]string{}
	if req.Email == "" {
		fields["email"] = "is required"
	}
	if req.Password == "" {
		fields["password"] = "is required"
	}
	role, ok := models.ParseRole(strings.ToLower(req.Role))
	if !ok {
		fields["role"] = "must be one of customer, merchant, rider"
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	session, err := h.Svc.Login(c.Request().Context(), req.Email, req.Password, role, clientMeta(c))
	if err != nil {
		return fail(c, err)
	}

	h.setSessionCookies(c, session)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    session.User,
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		return fail(c, service.ErrInvalidToken)
	}

	session, err := h.Svc.Refresh(c.Request().Context(), cookie.Value, clientMeta(c))
	if err != nil {
		// Cookies stay untouched on verification failure; only explicit
		// logout clears them.
		return fail(c, err)
	}

	h.setSessionCookies(c, session)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    session.User,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	raw := ""
	if cookie, err := c.Cookie(refreshCookie); err == nil {
		raw = cookie.Value
	}

	if err := h.Svc.Logout(c.Request().Context(), raw, clientMeta(c)); err != nil {
		return fail(c, err)
	}

	c.SetCookie(h.Cookies.Delete(accessCookie, "/"))
	c.SetCookie(h.Cookies.Delete(refreshCookie, "/"))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "logged out",
	})
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	userID, ok := c.Get(mw.CtxUserID).(uuid.UUID)
	if !ok {
		return fail(c, service.ErrInvalidToken)
	}

	revoked, err := h.Svc.LogoutAll(c.Request().Context(), userID, clientMeta(c))
	if err != nil {
		return fail(c, err)
	}

	c.SetCookie(h.Cookies.Delete(accessCookie, "/"))
	c.SetCookie(h.Cookies.Delete(refreshCookie, "/"))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"revoked": revoked,
	})
}

func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := c.Get(mw.CtxUserID).(uuid.UUID)
	if !ok {
		return fail(c, service.ErrInvalidToken)
	}

	user, err := h.Svc.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"user":    user,
	})
}

// GoogleRedirect sends the browser to the consent screen. The nonce inside
// the signed state is mirrored into a short-lived cookie so the callback can
// only complete in the browser that started the flow.
func (h *AuthHandler) GoogleRedirect(c echo.Context) error {
	role := strings.ToLower(c.QueryParam("role"))
	if role == "" {
		role = string(models.RoleCustomer)
	}
	parsed, ok := models.ParseRole(role)
	if !ok {
		return failValidation(c, map[string]string{"role": "must be one of customer, merchant, rider"})
	}

	url, nonce, err := h.Svc.GoogleAuthURL(parsed, c.QueryParam("redirect"))
	if err != nil {
		return fail(c, err)
	}

	c.SetCookie(h.Cookies.Create(stateCookie, nonce, "/", time.Now().Add(stateCookieTTL)))
	return c.Redirect(http.StatusFound, url)
}

// GoogleCallback completes the flow. The GET form redirects the browser; the
// POST form returns JSON for SPA-driven flows.
func (h *AuthHandler) GoogleCallback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if c.Request().Method == http.MethodPost {
		var req struct {
			Code  string `json:"code"`
			State string `json:"state"`
		}
		if err := c.Bind(&req); err == nil {
			if req.Code != "" {
				code = req.Code
			}
			if req.State != "" {
				state = req.State
			}
		}
	}
	if code == "" || state == "" {
		return failValidation(c, map[string]string{"code": "is required", "state": "is required"})
	}

	nonce := ""
	if cookie, err := c.Cookie(stateCookie); err == nil {
		nonce = cookie.Value
	}

	session, redirect, err := h.Svc.GoogleAuth(c.Request().Context(), code, state, nonce, clientMeta(c))
	if err != nil {
		return fail(c, err)
	}

	// State is single use.
	c.SetCookie(h.Cookies.Delete(stateCookie, "/"))
	h.setSessionCookies(c, session)

	logging.FromContext(c.Request().Context()).Info("oauth_callback_success", "user_id", session.User.ID)

	if c.Request().Method == http.MethodGet {
		if redirect == "" || !strings.HasPrefix(redirect, "/") {
			redirect = "/"
		}
		return c.Redirect(http.StatusFound, redirect)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"user":        session.User,
		"accessToken": session.AccessToken,
	})
}
