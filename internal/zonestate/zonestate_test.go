package zonestate_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

	livingRoom = comap.Zone{
		ID:            "z1",
		Title:         "Living room",
		SetPointType:  comap.CustomTemperature,
		Temperature:   ptr(19.5),
		Humidity:      ptr(55.0),
		HeatingStatus: "heating",
		SetPoint:      comap.SetPoint{Instruction: comap.TemperatureInstruction(21)},
		Events: comap.ZoneEvents{TemporaryInstruction: &comap.TemporaryInstruction{
			SetPoint: comap.SetPoint{Instruction: comap.TemperatureInstruction(21)},
			EndAt:    comap.Timestamp{Time: now.Add(time.Hour)},
		}},
		LastPresenceDetected: comap.Timestamp{Time: now.Add(-time.Minute)},
	}
	bedroom = comap.Zone{
		ID:                   "z2",
		Title:                "Bedroom",
		SetPointType:         comap.PilotWire,
		Temperature:          ptr(17.0),
		HeatingStatus:        "cooling",
		SetPoint:             comap.SetPoint{Instruction: comap.KeyInstruction("frost_protection")},
		LastPresenceDetected: comap.Timestamp{Time: now.Add(-time.Hour)},
	}
	office = comap.Zone{
		ID:           "z3",
		Title:        "Office",
		SetPointType: comap.DefinedTemperature,
		SetPoint:     comap.SetPoint{Instruction: comap.KeyInstruction("eco")},
	}
)

func ptr[T any](v T) *T { return &v }

func TestResolver_Resolve(t *testing.T) {
	snapshot := zonestate.Snapshot{
		ThermalDetails: comap.ThermalDetails{HeatingSystemState: comap.HeatingOn},
		Temperatures:   comap.TemperatureLookup{Smart: map[string]float64{"eco": 17}},
		Schedules:      zonestate.ScheduleIndex{"z2": {ID: "s1", Title: "Week"}},
	}
	r := zonestate.Resolver{Now: func() time.Time { return now }}

	state, err := r.Resolve(livingRoom, snapshot)
	require.NoError(t, err)
	assert.Equal(t, zonestate.ModeHeat, state.HVACMode)
	assert.Equal(t, zonestate.ActionHeating, state.HVACAction)
	assert.Empty(t, state.Preset)
	require.NotNil(t, state.TargetTemperature)
	assert.Equal(t, 21.0, *state.TargetTemperature)
	require.NotNil(t, state.Override)
	assert.Equal(t, "21", state.Override.Instruction.String())
	assert.Equal(t, now.Add(time.Hour), state.Override.EndAt)
	assert.Nil(t, state.Schedule)
	assert.True(t, state.Occupied)

	state, err = r.Resolve(bedroom, snapshot)
	require.NoError(t, err)
	assert.Equal(t, zonestate.ModeAuto, state.HVACMode)
	assert.Equal(t, zonestate.ActionIdle, state.HVACAction)
	assert.Equal(t, zonestate.PresetAway, state.Preset)
	assert.Nil(t, state.TargetTemperature)
	assert.Nil(t, state.Override)
	require.NotNil(t, state.Schedule)
	assert.Equal(t, "Week", state.Schedule.Title)
	assert.False(t, state.Occupied)

	state, err = r.Resolve(office, snapshot)
	require.NoError(t, err)
	require.NotNil(t, state.TargetTemperature)
	assert.Equal(t, 17.0, *state.TargetTemperature)
	assert.Nil(t, state.Temperature)
}

func TestResolver_Resolve_AssistCompatibility(t *testing.T) {
	snapshot := zonestate.Snapshot{ThermalDetails: comap.ThermalDetails{HeatingSystemState: comap.HeatingOn}}

	state, err := zonestate.Resolver{AssistCompatibility: true}.Resolve(bedroom, snapshot)
	require.NoError(t, err)
	assert.Equal(t, zonestate.ModeHeat, state.HVACMode)
}

func TestResolver_Resolve_PilotWireWithoutInstruction(t *testing.T) {
	var details comap.ThermalDetails
	require.NoError(t, json.Unmarshal([]byte(`{
  "heating_system_state": "on",
  "zones": [
    { "id": "z5", "title": "Hall", "set_point_type": "pilot_wire", "set_point": { "instruction": null } },
    { "id": "z6", "title": "Garage", "set_point_type": "pilot_wire" }
  ]
}`), &details))

	states, err := zonestate.Resolver{}.ResolveAll(zonestate.Snapshot{ThermalDetails: details})
	require.NoError(t, err)
	require.Len(t, states, 2)
	for _, id := range []string{"z5", "z6"} {
		require.Contains(t, states, id)
		assert.Empty(t, states[id].Preset)
		assert.Nil(t, states[id].TargetTemperature)
	}
}

func TestResolver_Resolve_Errors(t *testing.T) {
	snapshot := zonestate.Snapshot{ThermalDetails: comap.ThermalDetails{HeatingSystemState: comap.HeatingOn}}
	var r zonestate.Resolver

	_, err := r.Resolve(comap.Zone{Title: "Attic"}, snapshot)
	var stateErr *comap.StateError
	assert.ErrorAs(t, err, &stateErr)

	zone := bedroom
	zone.SetPoint = comap.SetPoint{Instruction: comap.KeyInstruction("turbo")}
	_, err = r.Resolve(zone, snapshot)
	var mappingErr *zonestate.MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "turbo", mappingErr.Value)

	zone = bedroom
	zone.HeatingStatus = "defrosting"
	_, err = r.Resolve(zone, snapshot)
	assert.ErrorAs(t, err, &mappingErr)
}

func TestResolver_ResolveAll(t *testing.T) {
	broken := bedroom
	broken.ID = "z4"
	broken.SetPoint = comap.SetPoint{Instruction: comap.TemperatureInstruction(20)}

	snapshot := zonestate.Snapshot{
		ThermalDetails: comap.ThermalDetails{Zones: []comap.Zone{livingRoom, bedroom, office, broken}},
	}

	states, err := zonestate.Resolver{}.ResolveAll(snapshot)
	var mappingErr *zonestate.MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Len(t, states, 3)
	assert.Contains(t, states, "z1")
	assert.Contains(t, states, "z2")
	assert.Contains(t, states, "z3")
	assert.NotContains(t, states, "z4")
}

func TestNewScheduleIndex(t *testing.T) {
	program := comap.Program{
		ID: "p1",
		Zones: []comap.ProgramZone{
			{ID: "z1", ScheduleID: "s1"},
			{ID: "z2", ScheduleID: "s2"},
			{ID: "z3", ScheduleID: "unknown"},
		},
	}
	schedules := []comap.Schedule{{ID: "s1", Title: "Week"}, {ID: "s2", Title: "Weekend"}}

	index := zonestate.NewScheduleIndex(program, schedules)
	assert.Equal(t, zonestate.ScheduleIndex{
		"z1": {ID: "s1", Title: "Week"},
		"z2": {ID: "s2", Title: "Weekend"},
	}, index)
}
