package middleware

import (
	"net/http"
	"sync/atomic"
)

// RequestCounter feeds the app-level request and error totals exposed on
// the metrics endpoint. Any 4xx or 5xx response counts as an error.
type RequestCounter struct {
	requests *atomic.Int64
	errors   *atomic.Int64
}

func NewRequestCounter(requests, errors *atomic.Int64) *RequestCounter {
	return &RequestCounter{requests: requests, errors: errors}
}

func (rc *RequestCounter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc.requests.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			rc.errors.Add(1)
		}
	})
}
