package httpserver

import (
	"net/http"
	"time"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
	stateCookie   = "oauthState"
)

type CookieOptions struct {
	Domain string
	Secure bool
}

func (o CookieOptions) Create(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   o.Domain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (o CookieOptions) Delete(name, path string) *http.Cookie {
	c := o.Create(name, "", path, time.Unix(0, 0))
	c.MaxAge = -1
	return c
}
