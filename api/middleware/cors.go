package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const allowOriginHeader = "Access-Control-Allow-Origin"

// CORS allows any origin to call the gallery API from a browser. Preflight
// requests fall through to the route so OPTIONS handlers still answer them.
func CORS() func(http.Handler) http.Handler {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodOptions,
			http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead,
		},
		AllowedHeaders:     []string{"Content-Type"},
		ExposedHeaders:     []string{requestIDHeader},
		OptionsPassthrough: true,
		MaxAge:             300,
	}).Handler

	return func(next http.Handler) http.Handler {
		wrapped := handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// go-chi/cors stays silent for methods outside AllowedMethods;
			// their 405 still has to be readable cross-origin.
			if r.Header.Get("Origin") != "" {
				w.Header().Set(allowOriginHeader, "*")
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
