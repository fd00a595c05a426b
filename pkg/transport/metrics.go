package transport

import (
	"net/http"
	"strconv"

	"github.com/rhuss/werkstatt/pkg/observability"
)

// Metrics counts served requests by method and status class under the
// given server label.
func Metrics(server string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			class := strconv.Itoa(status/100) + "xx"
			observability.ServerRequestsTotal.WithLabelValues(server, r.Method, class).Inc()
		})
	}
}
