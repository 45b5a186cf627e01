package monitor

import (
	"log/slog"
	"net/http"

	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

// newClient returns a Comap client that records every call to the Comap API in the registry.
func newClient(cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) *comap.Client {
	requestMetrics := comap.NewRequestMetrics("comap", "monitor", prometheus.Labels{"application": "comap"})
	registry.MustRegister(requestMetrics)

	return comap.New(
		comap.Credentials{
			Username: cfg.GetString("comap.username"),
			Password: cfg.GetString("comap.password"),
			ClientID: cfg.GetString("comap.clientID"),
		},
		comap.WithRoundTripper(comap.InstrumentedTransport(http.DefaultTransport, requestMetrics)),
		comap.WithTimeout(cfg.GetDuration("comap.timeout")),
		comap.WithHousing(cfg.GetString("comap.housing")),
		comap.WithLogger(logger),
	)
}
