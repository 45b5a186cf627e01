package poller

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
)

// Update contains the state of a housing, as collected by the Poller.
type Update struct {
	HousingID        string                     `json:"housing_id"`
	ThermalDetails   comap.ThermalDetails       `json:"thermal_details"`
	Temperatures     comap.TemperatureLookup    `json:"-"`
	Programs         comap.Programs             `json:"programs"`
	Schedules        []comap.Schedule           `json:"schedules"`
	ConnectedObjects []comap.ConnectedObject    `json:"connected_objects"`
	Zones            map[string]zonestate.State `json:"zones"`
	Timestamp        time.Time                  `json:"timestamp"`
}

// ActiveProgram returns the housing's active program, if there is exactly one.
func (u Update) ActiveProgram() (comap.Program, bool) {
	program, err := u.Programs.Active()
	return program, err == nil
}

// GetZoneID returns the ID of the zone with the specified title. Titles are matched case-insensitively.
func (u Update) GetZoneID(title string) (string, bool) {
	for _, zone := range u.ThermalDetails.Zones {
		if strings.EqualFold(zone.Title, title) {
			return zone.ID, true
		}
	}
	return "", false
}

// SortedZones returns the resolved zone states, ordered by title.
func (u Update) SortedZones() []zonestate.State {
	zones := make([]zonestate.State, 0, len(u.Zones))
	for _, zone := range u.Zones {
		zones = append(zones, zone)
	}
	slices.SortFunc(zones, func(a, b zonestate.State) int {
		return strings.Compare(a.Title, b.Title)
	})
	return zones
}

func (u Update) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("housing", u.HousingID),
		slog.String("heating", string(u.ThermalDetails.HeatingSystemState)),
	}
	if events := u.ThermalDetails.Events.Active(); len(events) > 0 {
		attrs = append(attrs, slog.String("events", strings.Join(events, ",")))
	}
	if program, ok := u.ActiveProgram(); ok {
		attrs = append(attrs, slog.String("program", program.Title))
	}
	zones := make([]slog.Attr, 0, len(u.Zones))
	for _, zone := range u.SortedZones() {
		zones = append(zones, slog.Attr{Key: zone.Title, Value: zone.LogValue()})
	}
	attrs = append(attrs, slog.Attr{Key: "zones", Value: slog.GroupValue(zones...)})
	return slog.GroupValue(attrs...)
}
