package collector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clambin/comap-monitor/internal/poller"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	comapZoneTemperatureCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "temperature_celsius"),
		"Current temperature of this zone in degrees celsius",
		[]string{"zone_name"},
		nil,
	)
	comapZoneHumidityPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "humidity_percentage"),
		"Current humidity percentage in this zone",
		[]string{"zone_name"},
		nil,
	)
	comapZoneTargetTempCelsius = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "target_temp_celsius"),
		"Target temperature of this zone in degrees celsius",
		[]string{"zone_name"},
		nil,
	)
	comapZoneHeating = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "heating"),
		"1 if this zone is heating",
		[]string{"zone_name"},
		nil,
	)
	comapZoneOverride = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "override"),
		"1 if this zone has a temporary instruction",
		[]string{"zone_name"},
		nil,
	)
	comapZoneInfo = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "zone", "info"),
		"Zone mode, preset and active schedule. Always 1",
		[]string{"zone_name", "hvac_mode", "preset", "schedule"},
		nil,
	)
	comapObjectBatteryPercentage = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "object", "battery_percentage"),
		"Battery level of a connected object in percentage (0-100)",
		[]string{"serial_number", "model", "zone_name"},
		nil,
	)
	comapHousingHeating = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "housing", "heating"),
		"1 if the housing's heating system is on",
		nil,
		nil,
	)
	comapHousingEvent = prometheus.NewDesc(
		prometheus.BuildFQName("comap", "housing", "event"),
		"Active housing events. Always 1. Label event specifies the event",
		[]string{"event"},
		nil,
	)
)

// Collector exports the state published by the Poller as Prometheus metrics.
type Collector struct {
	Poller     poller.Poller
	Logger     *slog.Logger
	lock       sync.RWMutex
	lastUpdate *poller.Update
}

func (c *Collector) Run(ctx context.Context) error {
	c.Logger.Debug("started")
	defer c.Logger.Debug("stopped")

	ch := c.Poller.Subscribe()
	defer c.Poller.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			c.process(update)
		}
	}
}

func (c *Collector) process(update poller.Update) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.lastUpdate = &update
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- comapZoneTemperatureCelsius
	ch <- comapZoneHumidityPercentage
	ch <- comapZoneTargetTempCelsius
	ch <- comapZoneHeating
	ch <- comapZoneOverride
	ch <- comapZoneInfo
	ch <- comapObjectBatteryPercentage
	ch <- comapHousingHeating
	ch <- comapHousingEvent
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if c.lastUpdate != nil {
		c.collectZones(ch)
		c.collectObjects(ch)
		c.collectHousing(ch)
	}
}

func (c *Collector) collectZones(ch chan<- prometheus.Metric) {
	for _, zone := range c.lastUpdate.Zones {
		if zone.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(comapZoneTemperatureCelsius, prometheus.GaugeValue, *zone.Temperature, zone.Title)
		}
		if zone.Humidity != nil {
			ch <- prometheus.MustNewConstMetric(comapZoneHumidityPercentage, prometheus.GaugeValue, *zone.Humidity, zone.Title)
		}
		if zone.TargetTemperature != nil {
			ch <- prometheus.MustNewConstMetric(comapZoneTargetTempCelsius, prometheus.GaugeValue, *zone.TargetTemperature, zone.Title)
		}
		ch <- prometheus.MustNewConstMetric(comapZoneHeating, prometheus.GaugeValue, boolToFloat(zone.HVACAction == zonestate.ActionHeating), zone.Title)
		ch <- prometheus.MustNewConstMetric(comapZoneOverride, prometheus.GaugeValue, boolToFloat(zone.Override != nil), zone.Title)

		var schedule string
		if zone.Schedule != nil {
			schedule = zone.Schedule.Title
		}
		ch <- prometheus.MustNewConstMetric(comapZoneInfo, prometheus.GaugeValue, 1, zone.Title, string(zone.HVACMode), zone.Preset, schedule)
	}
}

func (c *Collector) collectObjects(ch chan<- prometheus.Metric) {
	for _, object := range c.lastUpdate.ConnectedObjects {
		if !object.HasBattery() {
			continue
		}
		var zoneName string
		if zone, ok := c.lastUpdate.ThermalDetails.ZoneForObject(object.SerialNumber); ok {
			zoneName = zone.Title
		}
		ch <- prometheus.MustNewConstMetric(comapObjectBatteryPercentage, prometheus.GaugeValue, *object.VoltagePercent, object.SerialNumber, object.Model, zoneName)
	}
}

func (c *Collector) collectHousing(ch chan<- prometheus.Metric) {
	if state := c.lastUpdate.ThermalDetails.HeatingSystemState; state != "" {
		ch <- prometheus.MustNewConstMetric(comapHousingHeating, prometheus.GaugeValue, boolToFloat(state == comap.HeatingOn))
	}
	for _, event := range c.lastUpdate.ThermalDetails.Events.Active() {
		ch <- prometheus.MustNewConstMetric(comapHousingEvent, prometheus.GaugeValue, 1, event)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
