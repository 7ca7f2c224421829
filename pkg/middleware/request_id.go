package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/onronder/ContentLabTech-sub011/pkg/requestid"
)

// RequestID takes the request id from the X-Request-Id header, falls back to the one chi
// generated, and otherwise generates a new one. The id is stored with the requestid package
// and echoed back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = requestid.Generate()
		}

		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), id)))
	})
}
