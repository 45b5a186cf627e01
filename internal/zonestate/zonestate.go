// Package zonestate maps the thermal state reported by Comap to the state of a thermostat: HVAC mode & action,
// preset, target temperature, override and active schedule.
package zonestate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clambin/comap-monitor/pkg/comap"
)

// DefaultPresenceTimeout is how long a zone is considered occupied after presence was last detected.
const DefaultPresenceTimeout = 2 * time.Minute

// State is the resolved state of a zone.
type State struct {
	ZoneID            string             `json:"zone_id"`
	Title             string             `json:"title"`
	SetPointType      comap.SetPointType `json:"set_point_type"`
	Temperature       *float64           `json:"temperature,omitempty"`
	Humidity          *float64           `json:"humidity,omitempty"`
	HVACMode          HVACMode           `json:"hvac_mode"`
	HVACAction        HVACAction         `json:"hvac_action"`
	Preset            string             `json:"preset,omitempty"`
	TargetTemperature *float64           `json:"target_temperature,omitempty"`
	Override          *Override          `json:"override,omitempty"`
	Schedule          *comap.Schedule    `json:"schedule,omitempty"`
	OpenWindow        bool               `json:"open_window"`
	Occupied          bool               `json:"occupied"`
	ConnectedObjects  []string           `json:"connected_objects,omitempty"`
}

func (s State) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", s.ZoneID),
		slog.String("mode", string(s.HVACMode)),
		slog.String("action", string(s.HVACAction)),
	}
	if s.Temperature != nil {
		attrs = append(attrs, slog.Float64("temperature", *s.Temperature))
	}
	if s.Preset != "" {
		attrs = append(attrs, slog.String("preset", s.Preset))
	}
	if s.TargetTemperature != nil {
		attrs = append(attrs, slog.Float64("target", *s.TargetTemperature))
	}
	if s.Override != nil {
		attrs = append(attrs, slog.String("override", s.Override.Instruction.String()))
	}
	return slog.GroupValue(attrs...)
}

// Override is a temporary instruction overriding the zone's schedule.
type Override struct {
	Instruction comap.Instruction `json:"instruction"`
	EndAt       time.Time         `json:"end_at"`
}

// ScheduleIndex maps a zone ID to the schedule assigned to it in the active program.
type ScheduleIndex map[string]comap.Schedule

// NewScheduleIndex cross-references the active program's zone assignments with the housing's schedules.
// Assignments to unknown schedules are skipped.
func NewScheduleIndex(program comap.Program, schedules []comap.Schedule) ScheduleIndex {
	byID := make(map[string]comap.Schedule, len(schedules))
	for _, schedule := range schedules {
		byID[schedule.ID] = schedule
	}
	index := make(ScheduleIndex, len(program.Zones))
	for _, zone := range program.Zones {
		if schedule, ok := byID[zone.ScheduleID]; ok {
			index[zone.ID] = schedule
		}
	}
	return index
}

// Snapshot holds the housing-level data needed to resolve the state of its zones.
type Snapshot struct {
	ThermalDetails comap.ThermalDetails
	Temperatures   comap.TemperatureLookup
	Schedules      ScheduleIndex
}

// Resolver determines the State of a zone. The zero value is ready for use.
type Resolver struct {
	// AssistCompatibility reports zones in automatic mode as "heat", for voice assistants that don't support "auto".
	AssistCompatibility bool
	// PresenceTimeout overrides DefaultPresenceTimeout.
	PresenceTimeout time.Duration
	// Now overrides time.Now.
	Now func() time.Time
}

// Resolve determines the state of a zone. Resolve doesn't call the Comap API.
func (r Resolver) Resolve(zone comap.Zone, snapshot Snapshot) (State, error) {
	if zone.ID == "" {
		return State{}, &comap.StateError{Reason: "zone " + zone.Title + " has no id"}
	}
	heating := snapshot.ThermalDetails.HeatingSystemState

	state := State{
		ZoneID:           zone.ID,
		Title:            zone.Title,
		SetPointType:     zone.SetPointType,
		Temperature:      zone.Temperature,
		Humidity:         zone.Humidity,
		OpenWindow:       zone.OpenWindow,
		Occupied:         r.occupied(zone.LastPresenceDetected.Time),
		ConnectedObjects: zone.ConnectedObjects,
	}

	var err error
	if state.HVACMode, err = ResolveHVACMode(heating, zone, r.AssistCompatibility); err != nil {
		return State{}, fmt.Errorf("zone %s: %w", zone.ID, err)
	}
	if state.HVACAction, err = ResolveHVACAction(heating, zone.HeatingStatus); err != nil {
		return State{}, fmt.Errorf("zone %s: %w", zone.ID, err)
	}

	// a pilot wire zone without an instruction has no preset
	if instruction := zone.SetPoint.Instruction; zone.SetPointType == comap.PilotWire && !instruction.IsZero() {
		if state.Preset, err = PresetForKey(instruction.String()); err != nil {
			return State{}, fmt.Errorf("zone %s: %w", zone.ID, err)
		}
	}

	if target, ok := TargetTemperature(zone, snapshot.Temperatures); ok {
		state.TargetTemperature = &target
	}

	if instruction := zone.Events.TemporaryInstruction; instruction != nil {
		state.Override = &Override{
			Instruction: instruction.SetPoint.Instruction,
			EndAt:       instruction.EndAt.Time,
		}
	}

	if schedule, ok := snapshot.Schedules[zone.ID]; ok {
		state.Schedule = &schedule
	}

	return state, nil
}

// ResolveAll determines the state of all zones in the snapshot. Zones that can't be resolved are left out;
// their errors are joined in the returned error.
func (r Resolver) ResolveAll(snapshot Snapshot) (map[string]State, error) {
	states := make(map[string]State, len(snapshot.ThermalDetails.Zones))
	var errs []error
	for _, zone := range snapshot.ThermalDetails.Zones {
		state, err := r.Resolve(zone, snapshot)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		states[zone.ID] = state
	}
	return states, errors.Join(errs...)
}

func (r Resolver) occupied(lastDetected time.Time) bool {
	if lastDetected.IsZero() {
		return false
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	timeout := r.PresenceTimeout
	if timeout == 0 {
		timeout = DefaultPresenceTimeout
	}
	return now().Sub(lastDetected) <= timeout
}
