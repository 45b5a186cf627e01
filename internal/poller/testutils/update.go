package testutils

import (
	"github.com/clambin/comap-monitor/internal/poller"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
)

func Update(options ...UpdateOption) poller.Update {
	u := poller.Update{Zones: make(map[string]zonestate.State)}
	for _, option := range options {
		option(&u)
	}
	return u
}

type UpdateOption func(*poller.Update)

func WithHousing(id string, heating comap.HeatingSystemState, events ...string) UpdateOption {
	return func(u *poller.Update) {
		u.HousingID = id
		u.ThermalDetails.HeatingSystemState = heating
		if len(events) > 0 {
			u.ThermalDetails.Events = make(comap.HousingEvents, len(events))
			for _, event := range events {
				u.ThermalDetails.Events[event] = []byte(`{}`)
			}
		}
	}
}

func WithProgram(id, title string, active bool, zoneSchedules map[string]string) UpdateOption {
	return func(u *poller.Update) {
		program := comap.Program{ID: id, Title: title, IsActivated: active}
		for zoneID, scheduleID := range zoneSchedules {
			program.Zones = append(program.Zones, comap.ProgramZone{ID: zoneID, ScheduleID: scheduleID})
		}
		u.Programs.Programs = append(u.Programs.Programs, program)
	}
}

func WithSchedule(id, title string) UpdateOption {
	return func(u *poller.Update) {
		u.Schedules = append(u.Schedules, comap.Schedule{ID: id, Title: title})
	}
}

// WithZone adds a zone to the update, both as reported by Comap and as resolved.
func WithZone(id, title string, temperature float64, options ...ZoneOption) UpdateOption {
	return func(u *poller.Update) {
		zone := comap.Zone{
			ID:           id,
			Title:        title,
			SetPointType: comap.CustomTemperature,
			Temperature:  &temperature,
		}
		state := zonestate.State{
			ZoneID:       id,
			Title:        title,
			SetPointType: comap.CustomTemperature,
			Temperature:  &temperature,
			HVACMode:     zonestate.ModeAuto,
			HVACAction:   zonestate.ActionIdle,
		}
		for _, option := range options {
			option(&zone, &state)
		}
		u.ThermalDetails.Zones = append(u.ThermalDetails.Zones, zone)
		u.Zones[id] = state
	}
}

type ZoneOption func(*comap.Zone, *zonestate.State)

func WithHumidity(humidity float64) ZoneOption {
	return func(zone *comap.Zone, state *zonestate.State) {
		zone.Humidity = &humidity
		state.Humidity = &humidity
	}
}

func WithTarget(target float64) ZoneOption {
	return func(zone *comap.Zone, state *zonestate.State) {
		zone.SetPoint.Instruction = comap.TemperatureInstruction(target)
		state.TargetTemperature = &target
	}
}

func WithHeating() ZoneOption {
	return func(zone *comap.Zone, state *zonestate.State) {
		zone.HeatingStatus = "heating"
		state.HVACAction = zonestate.ActionHeating
	}
}

func WithPreset(key, preset string) ZoneOption {
	return func(zone *comap.Zone, state *zonestate.State) {
		zone.SetPointType = comap.PilotWire
		zone.Temperature = nil
		zone.SetPoint.Instruction = comap.KeyInstruction(key)
		state.SetPointType = comap.PilotWire
		state.Temperature = nil
		state.Preset = preset
	}
}

func WithOverride(instruction comap.Instruction) ZoneOption {
	return func(zone *comap.Zone, state *zonestate.State) {
		zone.Events.TemporaryInstruction = &comap.TemporaryInstruction{SetPoint: comap.SetPoint{Instruction: instruction}}
		state.HVACMode = zonestate.ModeHeat
		state.Override = &zonestate.Override{Instruction: instruction}
	}
}

func WithZoneSchedule(id, title string) ZoneOption {
	return func(_ *comap.Zone, state *zonestate.State) {
		state.Schedule = &comap.Schedule{ID: id, Title: title}
	}
}

func WithConnectedObject(serial, model string, zoneID string, battery float64) UpdateOption {
	return func(u *poller.Update) {
		u.ConnectedObjects = append(u.ConnectedObjects, comap.ConnectedObject{
			SerialNumber:   serial,
			Model:          model,
			VoltagePercent: &battery,
		})
		for i := range u.ThermalDetails.Zones {
			if u.ThermalDetails.Zones[i].ID == zoneID {
				u.ThermalDetails.Zones[i].ConnectedObjects = append(u.ThermalDetails.Zones[i].ConnectedObjects, serial)
			}
		}
	}
}
