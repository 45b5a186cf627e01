package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/clambin/comap-monitor/internal/cmd/config"
	"github.com/clambin/comap-monitor/internal/cmd/monitor"
	"github.com/clambin/go-common/charmer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "comap",
		Short: "Utility for Comap Smart Home thermostats",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	if err := charmer.SetPersistentFlags(&RootCmd, viper.GetViper(), args); err != nil {
		panic("failed to set flags: " + err.Error())
	}
	RootCmd.AddCommand(&monitor.Cmd, &config.Cmd)
}

var args = charmer.Arguments{
	"debug":                     {Default: false, Help: "Log debug messages"},
	"comap.username":            {Default: "", Help: "Comap username"},
	"comap.password":            {Default: "", Help: "Comap password"},
	"comap.clientID":            {Default: "", Help: "Comap identity provider client ID (blank: use the app's client ID)"},
	"comap.housing":             {Default: "", Help: "Comap housing ID (blank: first housing of the account)"},
	"comap.timeout":             {Default: 10 * time.Second, Help: "Timeout for Comap API calls"},
	"poller.interval":           {Default: 30 * time.Second, Help: "Poller interval"},
	"poller.slowInterval":       {Default: 5 * time.Minute, Help: "Poller interval for programs, schedules and connected objects"},
	"zones.assistCompatibility": {Default: false, Help: "Report zones in automatic mode as heat, for voice assistants that don't support auto"},
	"zones.overrideDuration":    {Default: 2 * time.Hour, Help: "Default duration of a temporary instruction"},
	"exporter.addr":             {Default: ":9090", Help: "Address of Prometheus exporter"},
	"health.addr":               {Default: ":8080", Help: "Address of /health endpoint"},
	"api.addr":                  {Default: "", Help: "Address of the REST API (blank: disabled)"},
	"mqtt.broker":               {Default: "", Help: "MQTT broker URL (blank: disabled)"},
	"mqtt.topic":                {Default: "comap", Help: "MQTT topic prefix"},
	"slack.token":               {Default: "", Help: "Slack token (blank: disabled)"},
	"slack.channel":             {Default: "", Help: "Slack channel to post changes to"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/comap-monitor/")
		viper.AddConfigPath("$HOME/.comap-monitor")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("COMAP_MONITOR")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
