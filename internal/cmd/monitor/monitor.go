package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clambin/comap-monitor/internal/api"
	"github.com/clambin/comap-monitor/internal/bot"
	"github.com/clambin/comap-monitor/internal/collector"
	"github.com/clambin/comap-monitor/internal/health"
	"github.com/clambin/comap-monitor/internal/mqtt"
	"github.com/clambin/comap-monitor/internal/poller"
	"github.com/clambin/comap-monitor/internal/thermostat"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "Monitor Comap thermostats",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return Run(ctx, viper.GetViper(), cmd.Root().Version, prometheus.DefaultRegisterer, charmer.GetLogger(cmd))
	},
}

// Run connects to Comap and runs all configured tasks until ctx is canceled or one of the tasks fails.
// The metrics exporter serves the default prometheus registry.
func Run(ctx context.Context, cfg *viper.Viper, version string, registry prometheus.Registerer, logger *slog.Logger) error {
	logger.Info("comap-monitor starting", "version", version)
	defer logger.Info("comap-monitor stopped")

	client := newClient(cfg, registry, logger.With("component", "comap"))
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("comap: %w", err)
	}

	tasks, err := makeTasks(cfg, client, version, registry, logger)
	if err != nil {
		return err
	}
	return taskmanager.New(tasks...).Run(ctx)
}

func makeTasks(cfg *viper.Viper, client *comap.Client, version string, registry prometheus.Registerer, l *slog.Logger) ([]taskmanager.Task, error) {
	var tasks []taskmanager.Task

	resolver := zonestate.Resolver{AssistCompatibility: cfg.GetBool("zones.assistCompatibility")}

	// Poller
	p := poller.New(client, cfg.GetDuration("poller.interval"), cfg.GetDuration("poller.slowInterval"), l.With("component", "poller"))
	p.Resolver = resolver
	tasks = append(tasks, p)

	// Collector
	coll := &collector.Collector{Poller: p, Logger: l.With("component", "collector")}
	registry.MustRegister(coll)
	tasks = append(tasks, coll)

	// Prometheus Server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health Endpoint
	h := health.New(p, l.With("component", "health"))
	tasks = append(tasks, h)
	r := http.NewServeMux()
	r.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), r))

	t := thermostat.New(client, resolver, cfg.GetDuration("zones.overrideDuration"), l.With("component", "thermostat"))

	// REST API
	if addr := cfg.GetString("api.addr"); addr != "" {
		if !cfg.GetBool("debug") {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.New(t, l.With("component", "api")).Router()
		tasks = append(tasks, httpserver.New(addr, router))
	}

	// MQTT
	if broker := cfg.GetString("mqtt.broker"); broker != "" {
		mqttClient, err := mqtt.Connect(broker, "comap-monitor-"+client.HousingID(), cfg.GetDuration("comap.timeout"))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, &mqtt.Publisher{
			Poller:  p,
			Client:  mqttClient,
			Prefix:  cfg.GetString("mqtt.topic"),
			Timeout: cfg.GetDuration("comap.timeout"),
			Logger:  l.With("component", "mqtt"),
		})
	}

	// Slackbot
	if token := cfg.GetString("slack.token"); token != "" {
		b := slackbot.New(
			token,
			slackbot.WithName("comapBot "+version),
			slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
		)
		tasks = append(tasks,
			b,
			bot.New(t, b, p, cfg.GetString("slack.channel"), l.With(slog.String("component", "comapbot"))),
		)
	}

	return tasks, nil
}
