// Package requesttime pins one instant and one request id per HTTP request so
// every timestamp and log line of the request agrees.
package requesttime

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"sdcatalog/pkg/requestcontext"
)

// HeaderRequestID is echoed back to callers and reused when they send one.
const HeaderRequestID = "X-Request-Id"

// Middleware captures the current time at the start of the request and
// stores it, together with the request id, in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		ctx = requestcontext.WithRequestID(ctx, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
