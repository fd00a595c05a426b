package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InstrumentTransport wraps next so that every request is counted and
// timed under the given client label ("controlplane", "gateway",
// "provider"). A nil next selects http.DefaultTransport.
func InstrumentTransport(client string, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	labels := prometheus.Labels{"client": client}
	return promhttp.InstrumentRoundTripperCounter(
		HTTPClientRequestsTotal.MustCurryWith(labels),
		promhttp.InstrumentRoundTripperDuration(
			HTTPClientDuration.MustCurryWith(labels),
			next,
		),
	)
}

// WriteTextfile writes every registered collector to path in the text
// exposition format, for pickup by a node exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
