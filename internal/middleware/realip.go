package middleware

import (
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RealIP rewrites RemoteAddr from X-Real-IP / X-Forwarded-For only when the
// server sits behind a trusted proxy. Otherwise the headers are client
// controlled and RemoteAddr is left as the TCP peer address.
func RealIP(trustProxy bool) func(http.Handler) http.Handler {
	if trustProxy {
		return chiMiddleware.RealIP
	}
	return func(next http.Handler) http.Handler {
		return next
	}
}
