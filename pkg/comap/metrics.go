package comap

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/prometheus/client_golang/prometheus"
)

// NewRequestMetrics returns request metrics for calls to the Comap API. Housing, zone and program IDs are
// removed from the path label.
func NewRequestMetrics(namespace, subsystem string, labels prometheus.Labels) metrics.RequestMetrics {
	return metrics.NewRequestMetrics(metrics.Options{
		Namespace:   namespace,
		Subsystem:   subsystem,
		ConstLabels: labels,
		LabelValues: func(request *http.Request, code int) (string, string, string) {
			return request.Method, collapsePath(request.URL.Path), strconv.Itoa(code)
		},
	})
}

// InstrumentedTransport wraps a transport so that each call is recorded in the request metrics.
func InstrumentedTransport(rt http.RoundTripper, requestMetrics metrics.RequestMetrics) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return roundtripper.New(
		roundtripper.WithRequestMetrics(requestMetrics),
		roundtripper.WithRoundTripper(rt),
	)
}

var idParents = map[string]struct{}{
	"housings": {},
	"zones":    {},
	"programs": {},
}

func collapsePath(path string) string {
	if path == "" {
		return "/"
	}
	elements := strings.Split(path, "/")
	for i := 1; i < len(elements); i++ {
		if _, ok := idParents[elements[i-1]]; ok && elements[i] != "" {
			elements[i] = "{id}"
		}
	}
	return strings.Join(elements, "/")
}
