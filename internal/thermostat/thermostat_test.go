package thermostat_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/clambin/comap-monitor/internal/thermostat"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mock.Mock
}

func (f *fakeClient) HousingID() string {
	return "h1"
}

func (f *fakeClient) GetHousings(ctx context.Context) ([]comap.Housing, error) {
	args := f.Called(ctx)
	return args.Get(0).([]comap.Housing), args.Error(1)
}

func (f *fakeClient) GetThermalDetails(ctx context.Context) (comap.ThermalDetails, error) {
	args := f.Called(ctx)
	return args.Get(0).(comap.ThermalDetails), args.Error(1)
}

func (f *fakeClient) GetZone(ctx context.Context, zoneID string) (comap.Zone, error) {
	args := f.Called(ctx, zoneID)
	return args.Get(0).(comap.Zone), args.Error(1)
}

func (f *fakeClient) GetCustomTemperatures(ctx context.Context) (comap.TemperatureLookup, error) {
	args := f.Called(ctx)
	return args.Get(0).(comap.TemperatureLookup), args.Error(1)
}

func (f *fakeClient) GetPrograms(ctx context.Context) (comap.Programs, error) {
	args := f.Called(ctx)
	return args.Get(0).(comap.Programs), args.Error(1)
}

func (f *fakeClient) GetSchedules(ctx context.Context) ([]comap.Schedule, error) {
	args := f.Called(ctx)
	return args.Get(0).([]comap.Schedule), args.Error(1)
}

func (f *fakeClient) AssignSchedule(ctx context.Context, programID, zoneID, scheduleID, programmingType string) error {
	return f.Called(ctx, programID, zoneID, scheduleID, programmingType).Error(0)
}

func (f *fakeClient) ActivateProgram(ctx context.Context, programID string) error {
	return f.Called(ctx, programID).Error(0)
}

func (f *fakeClient) SetTemporaryInstruction(ctx context.Context, zoneID string, instruction comap.Instruction, duration time.Duration) (comap.ZoneEvents, error) {
	args := f.Called(ctx, zoneID, instruction, duration)
	return comap.ZoneEvents{}, args.Error(0)
}

func (f *fakeClient) RemoveTemporaryInstruction(ctx context.Context, zoneID string) comap.ZoneEvents {
	f.Called(ctx, zoneID)
	return comap.ZoneEvents{}
}

func (f *fakeClient) LeaveHome(ctx context.Context) error     { return f.Called(ctx).Error(0) }
func (f *fakeClient) ReturnHome(ctx context.Context) error    { return f.Called(ctx).Error(0) }
func (f *fakeClient) SetHoliday(ctx context.Context) error    { return f.Called(ctx).Error(0) }
func (f *fakeClient) DeleteHoliday(ctx context.Context) error { return f.Called(ctx).Error(0) }
func (f *fakeClient) SetAbsence(ctx context.Context) error    { return f.Called(ctx).Error(0) }
func (f *fakeClient) DeleteAbsence(ctx context.Context) error { return f.Called(ctx).Error(0) }

var (
	livingRoom = comap.Zone{
		ID:            "z1",
		Title:         "Living room",
		SetPointType:  comap.CustomTemperature,
		HeatingStatus: "heating",
		SetPoint:      comap.SetPoint{Instruction: comap.TemperatureInstruction(21)},
	}
	bedroom = comap.Zone{
		ID:            "z2",
		Title:         "Bedroom",
		SetPointType:  comap.PilotWire,
		HeatingStatus: "cooling",
		SetPoint:      comap.SetPoint{Instruction: comap.KeyInstruction("eco")},
	}
	details = comap.ThermalDetails{
		HeatingSystemState: comap.HeatingOn,
		Zones:              []comap.Zone{livingRoom, bedroom},
		Events:             comap.HousingEvents{"absence": []byte(`{}`)},
	}
	winter = comap.Program{
		ID:          "p1",
		Title:       "Winter",
		IsActivated: true,
		Zones:       []comap.ProgramZone{{ID: "z1", ScheduleID: "s1"}, {ID: "z2", ScheduleID: "s2"}},
	}
	schedules = []comap.Schedule{{ID: "s1", Title: "Week"}, {ID: "s2", Title: "Weekend"}}
)

func newService(client *fakeClient) *thermostat.Service {
	return thermostat.New(client, zonestate.Resolver{}, time.Hour, slog.New(slog.DiscardHandler))
}

func expectSnapshot(client *fakeClient, programs comap.Programs) {
	client.On("GetThermalDetails", mock.Anything).Return(details, nil)
	client.On("GetCustomTemperatures", mock.Anything).Return(comap.TemperatureLookup{}, nil)
	client.On("GetPrograms", mock.Anything).Return(programs, nil)
	client.On("GetSchedules", mock.Anything).Return(schedules, nil)
}

func TestService_GetZoneState(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{Programs: []comap.Program{winter}})
	client.On("GetZone", mock.Anything, "z2").Return(bedroom, nil)

	state, err := newService(&client).GetZoneState(t.Context(), "z2")
	require.NoError(t, err)
	assert.Equal(t, "Bedroom", state.Title)
	assert.Equal(t, zonestate.ModeAuto, state.HVACMode)
	assert.Equal(t, zonestate.ActionIdle, state.HVACAction)
	assert.Equal(t, zonestate.PresetEco, state.Preset)
	require.NotNil(t, state.Schedule)
	assert.Equal(t, "Weekend", state.Schedule.Title)
}

func TestService_GetZoneState_NoActiveProgram(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{})
	client.On("GetZone", mock.Anything, "z1").Return(livingRoom, nil)

	state, err := newService(&client).GetZoneState(t.Context(), "z1")
	require.NoError(t, err)
	assert.Nil(t, state.Schedule)
	require.NotNil(t, state.TargetTemperature)
	assert.Equal(t, 21.0, *state.TargetTemperature)
}

func TestService_GetZoneState_Failure(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{Programs: []comap.Program{winter}})
	client.On("GetZone", mock.Anything, "z9").Return(comap.Zone{}, &comap.APIError{StatusCode: 404})

	_, err := newService(&client).GetZoneState(t.Context(), "z9")
	var apiErr *comap.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestService_GetZoneStates(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{Programs: []comap.Program{winter}})

	states, err := newService(&client).GetZoneStates(t.Context())
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "Week", states["z1"].Schedule.Title)
	assert.Equal(t, zonestate.ActionHeating, states["z1"].HVACAction)
}

func TestService_GetHousingSummary(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{Programs: []comap.Program{winter}})
	client.On("GetHousings", mock.Anything).Return([]comap.Housing{{ID: "h0", Name: "Other"}, {ID: "h1", Name: "Home"}}, nil)

	summary, err := newService(&client).GetHousingSummary(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Home", summary.Housing.Name)
	assert.Equal(t, comap.HeatingOn, summary.HeatingSystemState)
	assert.True(t, summary.Holiday)
	assert.False(t, summary.Absence)
	assert.Equal(t, []string{"absence"}, summary.Events)
	require.NotNil(t, summary.ActiveProgram)
	assert.Equal(t, "Winter", summary.ActiveProgram.Title)
	assert.Len(t, summary.Schedules, 2)
	assert.Equal(t, 2, summary.Zones)
}

func TestService_SetOverride(t *testing.T) {
	client := fakeClient{}
	client.On("SetTemporaryInstruction", mock.Anything, "z1", comap.TemperatureInstruction(19), time.Hour).Return(nil).Once()
	client.On("SetTemporaryInstruction", mock.Anything, "z1", comap.TemperatureInstruction(22), 30*time.Minute).Return(nil).Once()
	client.On("SetTemporaryInstruction", mock.Anything, "z2", comap.KeyInstruction("comfort_minus1"), time.Hour).Return(nil).Once()
	client.On("RemoveTemporaryInstruction", mock.Anything, "z1").Once()

	s := newService(&client)
	require.NoError(t, s.SetTemperature(t.Context(), "z1", 19, 0))
	require.NoError(t, s.SetTemperature(t.Context(), "z1", 22, 30*time.Minute))
	require.NoError(t, s.SetPreset(t.Context(), "z2", "comfort -1", 0))
	s.ClearOverride(t.Context(), "z1")

	var mappingErr *zonestate.MappingError
	assert.ErrorAs(t, s.SetPreset(t.Context(), "z2", "boost", 0), &mappingErr)

	client.AssertExpectations(t)
}

func TestService_SetHVACMode(t *testing.T) {
	tests := []struct {
		name   string
		zone   comap.Zone
		mode   zonestate.HVACMode
		expect func(*fakeClient)
	}{
		{
			name: "auto",
			zone: livingRoom,
			mode: zonestate.ModeAuto,
			expect: func(client *fakeClient) {
				client.On("RemoveTemporaryInstruction", mock.Anything, "z1").Once()
			},
		},
		{
			name: "thermostat off",
			zone: livingRoom,
			mode: zonestate.ModeOff,
			expect: func(client *fakeClient) {
				client.On("SetTemporaryInstruction", mock.Anything, "z1", comap.TemperatureInstruction(thermostat.OffTemperature), time.Hour).Return(nil).Once()
			},
		},
		{
			name: "thermostat heat",
			zone: livingRoom,
			mode: zonestate.ModeHeat,
			expect: func(client *fakeClient) {
				client.On("SetTemporaryInstruction", mock.Anything, "z1", comap.TemperatureInstruction(thermostat.HeatTemperature), time.Hour).Return(nil).Once()
			},
		},
		{
			name: "pilot wire off",
			zone: bedroom,
			mode: zonestate.ModeOff,
			expect: func(client *fakeClient) {
				client.On("SetTemporaryInstruction", mock.Anything, "z2", comap.KeyInstruction("stop"), time.Hour).Return(nil).Once()
			},
		},
		{
			name: "pilot wire heat",
			zone: bedroom,
			mode: zonestate.ModeHeat,
			expect: func(client *fakeClient) {
				client.On("SetTemporaryInstruction", mock.Anything, "z2", comap.KeyInstruction("comfort"), time.Hour).Return(nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := fakeClient{}
			client.On("GetZone", mock.Anything, tt.zone.ID).Return(tt.zone, nil).Maybe()
			tt.expect(&client)

			require.NoError(t, newService(&client).SetHVACMode(t.Context(), tt.zone.ID, tt.mode))
			client.AssertExpectations(t)
		})
	}
}

func TestService_SetHVACMode_Invalid(t *testing.T) {
	client := fakeClient{}
	err := newService(&client).SetHVACMode(t.Context(), "z1", "cool")
	var mappingErr *zonestate.MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Equal(t, "hvac mode", mappingErr.Kind)
	client.AssertNotCalled(t, "GetZone", mock.Anything, mock.Anything)
}

func TestService_AssignSchedule(t *testing.T) {
	client := fakeClient{}
	expectSnapshot(&client, comap.Programs{Programs: []comap.Program{winter}})
	client.On("AssignSchedule", mock.Anything, "p1", "z1", "s2", comap.ProgrammingConnected).Return(nil).Once()
	client.On("GetZone", mock.Anything, "z1").Return(livingRoom, nil).Once()

	state, err := newService(&client).AssignSchedule(t.Context(), "z1", "s2")
	require.NoError(t, err)
	assert.Equal(t, "z1", state.ZoneID)
	client.AssertExpectations(t)
}

func TestService_HousingModes(t *testing.T) {
	client := fakeClient{}
	client.On("ActivateProgram", mock.Anything, "p2").Return(nil).Once()
	client.On("LeaveHome", mock.Anything).Return(nil).Once()
	client.On("ReturnHome", mock.Anything).Return(errors.New("fail")).Once()
	client.On("SetHoliday", mock.Anything).Return(nil).Once()
	client.On("DeleteHoliday", mock.Anything).Return(nil).Once()
	client.On("SetAbsence", mock.Anything).Return(nil).Once()
	client.On("DeleteAbsence", mock.Anything).Return(nil).Once()

	s := newService(&client)
	assert.NoError(t, s.SetProgram(t.Context(), "p2"))
	assert.NoError(t, s.SetAway(t.Context()))
	assert.Error(t, s.SetHome(t.Context()))
	assert.NoError(t, s.SetHoliday(t.Context(), true))
	assert.NoError(t, s.SetHoliday(t.Context(), false))
	assert.NoError(t, s.SetAbsence(t.Context(), true))
	assert.NoError(t, s.SetAbsence(t.Context(), false))

	client.AssertExpectations(t)
}
