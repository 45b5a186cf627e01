package monitor

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clambin/comap-monitor/internal/collector"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_makeTasks(t *testing.T) {
	testCases := []struct {
		name   string
		config string
		length int
	}{
		{
			name: "default",
			config: `
poller:
  interval: 30s
  slowInterval: 5m
health:
  addr: :9091
`,
			length: 5,
		},
		{
			name: "api",
			config: `
health:
  addr: :9091
api:
  addr: :8081
`,
			length: 6,
		},
		{
			name: "slack",
			config: `
health:
  addr: :9091
slack:
  token: 1234
  channel: "#heating"
`,
			length: 7,
		},
		{
			name: "all",
			config: `
health:
  addr: :9091
api:
  addr: :8081
slack:
  token: 1234
`,
			length: 8,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			cfg := viper.New()
			cfg.SetConfigType("yaml")
			require.NoError(t, cfg.ReadConfig(bytes.NewBufferString(tt.config)))

			tasks, err := makeTasks(cfg, comap.New(comap.Credentials{}), "1.0", prometheus.NewPedanticRegistry(), slog.New(slog.DiscardHandler))
			require.NoError(t, err)
			assert.Len(t, tasks, tt.length)
		})
	}
}

func Test_makeTasks_RegistersCollector(t *testing.T) {
	cfg := viper.New()
	registry := prometheus.NewPedanticRegistry()

	tasks, err := makeTasks(cfg, comap.New(comap.Credentials{}), "1.0", prometheus.WrapRegistererWithPrefix("", registry), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	var alreadyRegistered prometheus.AlreadyRegisteredError
	assert.ErrorAs(t, registry.Register(&collector.Collector{}), &alreadyRegistered)
}

func Test_newClient(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	t.Cleanup(s.Close)

	cfg := viper.New()
	cfg.Set("comap.timeout", time.Second)
	cfg.Set("comap.housing", "h1")
	registry := prometheus.NewPedanticRegistry()
	client := newClient(cfg, registry, slog.New(slog.DiscardHandler))
	assert.Equal(t, "h1", client.HousingID())

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, s.URL+"/park/housings", nil)
	resp, err := client.HTTPClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	count, err := testutil.GatherAndCount(registry, "comap_monitor_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
