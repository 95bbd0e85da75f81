package main

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// corsMiddleware admits browser origins matching CORS_ALLOWED_ORIGINS.
func corsMiddleware(patterns []string) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return matchCORSOrigin(origin, patterns), nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	})
}

// matchCORSOrigin reports whether origin is allowed by any pattern. A pattern
// is "*", an exact origin, or scheme://*.domain[:port] which admits any
// subdomain of domain (but not domain itself) over the same scheme and port.
func matchCORSOrigin(origin string, patterns []string) bool {
	origin = strings.TrimSpace(origin)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" || strings.EqualFold(p, origin) {
			return true
		}
		if !strings.Contains(p, "://*.") {
			continue
		}
		pu, err := url.Parse(strings.Replace(p, "://*.", "://", 1))
		if err != nil || pu.Host == "" {
			continue
		}
		ou, err := url.Parse(origin)
		if err != nil || ou.Host == "" {
			continue
		}
		if !strings.EqualFold(pu.Scheme, ou.Scheme) || pu.Port() != ou.Port() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(ou.Hostname()), "."+strings.ToLower(pu.Hostname())) {
			return true
		}
	}
	return false
}
