// Package thermostat exposes the operations that consumers (the HTTP API, the Slack bot) perform on a Comap housing.
package thermostat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clambin/comap-monitor/internal/programs"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"golang.org/x/sync/errgroup"
)

// Temperatures used when switching a thermostat zone off or on.
const (
	OffTemperature  = 7.0
	HeatTemperature = 20.0
)

// ComapClient contains the Comap API calls needed by the Service.
type ComapClient interface {
	programs.ComapClient
	HousingID() string
	GetHousings(ctx context.Context) ([]comap.Housing, error)
	GetZone(ctx context.Context, zoneID string) (comap.Zone, error)
	GetCustomTemperatures(ctx context.Context) (comap.TemperatureLookup, error)
	SetTemporaryInstruction(ctx context.Context, zoneID string, instruction comap.Instruction, duration time.Duration) (comap.ZoneEvents, error)
	RemoveTemporaryInstruction(ctx context.Context, zoneID string) comap.ZoneEvents
	LeaveHome(ctx context.Context) error
	ReturnHome(ctx context.Context) error
	SetHoliday(ctx context.Context) error
	DeleteHoliday(ctx context.Context) error
	SetAbsence(ctx context.Context) error
	DeleteAbsence(ctx context.Context) error
}

// Service reads and changes the state of the zones of a Comap housing.
type Service struct {
	Programs         *programs.Manager
	client           ComapClient
	resolver         zonestate.Resolver
	overrideDuration time.Duration
	logger           *slog.Logger
}

// New returns a Service. Overrides set without a duration last for overrideDuration.
func New(client ComapClient, resolver zonestate.Resolver, overrideDuration time.Duration, logger *slog.Logger) *Service {
	return &Service{
		Programs:         programs.New(client, logger.With("component", "programs")),
		client:           client,
		resolver:         resolver,
		overrideDuration: overrideDuration,
		logger:           logger,
	}
}

// GetZoneState returns the resolved state of a zone.
func (s *Service) GetZoneState(ctx context.Context, zoneID string) (zonestate.State, error) {
	var zone comap.Zone
	var snapshot zonestate.Snapshot

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		zone, err = s.client.GetZone(ctx, zoneID)
		return err
	})
	g.Go(func() error {
		var err error
		snapshot, err = s.snapshot(ctx, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return zonestate.State{}, err
	}
	return s.resolver.Resolve(zone, snapshot)
}

// GetZoneStates returns the resolved state of all zones. Zones that can't be resolved are left out.
func (s *Service) GetZoneStates(ctx context.Context) (map[string]zonestate.State, error) {
	snapshot, err := s.snapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	states, err := s.resolver.ResolveAll(snapshot)
	if err != nil {
		s.logger.Warn("not all zones could be resolved", "err", err)
	}
	return states, nil
}

// snapshot gathers the housing-level data needed to resolve zones. A housing without a single active program
// is reported without schedules.
func (s *Service) snapshot(ctx context.Context, withZones bool) (zonestate.Snapshot, error) {
	var snapshot zonestate.Snapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		details, err := s.client.GetThermalDetails(ctx)
		if err != nil {
			return fmt.Errorf("thermal details: %w", err)
		}
		if !withZones {
			details.Zones = nil
		}
		snapshot.ThermalDetails = details
		return nil
	})
	g.Go(func() error {
		temperatures, err := s.client.GetCustomTemperatures(ctx)
		if err != nil {
			return fmt.Errorf("custom temperatures: %w", err)
		}
		snapshot.Temperatures = temperatures
		return nil
	})
	g.Go(func() error {
		schedules, err := s.Programs.Schedules(ctx)
		var stateErr *comap.StateError
		if errors.As(err, &stateErr) {
			s.logger.Warn("schedules not available", "err", err)
			return nil
		}
		snapshot.Schedules = schedules
		return err
	})
	err := g.Wait()
	return snapshot, err
}

// HousingSummary describes a housing.
type HousingSummary struct {
	Housing            comap.Housing            `json:"housing"`
	HeatingSystemState comap.HeatingSystemState `json:"heating_system_state,omitempty"`
	Holiday            bool                     `json:"holiday"`
	Absence            bool                     `json:"absence"`
	Events             []string                 `json:"events,omitempty"`
	ActiveProgram      *comap.Program           `json:"active_program,omitempty"`
	Programs           []comap.Program          `json:"programs"`
	Schedules          []comap.Schedule         `json:"schedules"`
	Zones              int                      `json:"zones"`
}

// GetHousingSummary returns a summary of the housing.
func (s *Service) GetHousingSummary(ctx context.Context) (HousingSummary, error) {
	var summary HousingSummary
	var housings []comap.Housing
	var details comap.ThermalDetails
	var allPrograms comap.Programs

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		housings, err = s.client.GetHousings(ctx)
		return err
	})
	g.Go(func() (err error) {
		details, err = s.client.GetThermalDetails(ctx)
		return err
	})
	g.Go(func() (err error) {
		allPrograms, err = s.client.GetPrograms(ctx)
		return err
	})
	g.Go(func() (err error) {
		summary.Schedules, err = s.client.GetSchedules(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return HousingSummary{}, err
	}

	summary.Housing = comap.Housing{ID: s.client.HousingID()}
	for _, housing := range housings {
		if housing.ID == s.client.HousingID() {
			summary.Housing = housing
			break
		}
	}
	summary.HeatingSystemState = details.HeatingSystemState
	summary.Holiday = details.Events.Holiday()
	summary.Absence = details.Events.Absence()
	summary.Events = details.Events.Active()
	summary.Zones = len(details.Zones)
	summary.Programs = allPrograms.Programs
	if active, err := allPrograms.Active(); err == nil {
		summary.ActiveProgram = &active
	} else {
		s.logger.Warn("no active program", "err", err)
	}
	return summary, nil
}

// SetOverride sets a temporary instruction for a zone. If duration is zero, the Service's default duration is used.
func (s *Service) SetOverride(ctx context.Context, zoneID string, instruction comap.Instruction, duration time.Duration) error {
	if duration <= 0 {
		duration = s.overrideDuration
	}
	s.logger.Debug("setting override", "zone", zoneID, "instruction", instruction.String(), "duration", duration)
	_, err := s.client.SetTemporaryInstruction(ctx, zoneID, instruction, duration)
	return err
}

// ClearOverride removes a zone's temporary instruction. Failures are logged, not returned.
func (s *Service) ClearOverride(ctx context.Context, zoneID string) {
	s.logger.Debug("clearing override", "zone", zoneID)
	s.client.RemoveTemporaryInstruction(ctx, zoneID)
}

// SetTemperature sets a temporary target temperature for a zone.
func (s *Service) SetTemperature(ctx context.Context, zoneID string, temperature float64, duration time.Duration) error {
	return s.SetOverride(ctx, zoneID, comap.TemperatureInstruction(temperature), duration)
}

// SetPreset sets a temporary preset for a pilot wire zone.
func (s *Service) SetPreset(ctx context.Context, zoneID string, preset string, duration time.Duration) error {
	key, err := zonestate.KeyForPreset(preset)
	if err != nil {
		return err
	}
	return s.SetOverride(ctx, zoneID, comap.KeyInstruction(key), duration)
}

// SetHVACMode changes a zone's HVAC mode. Auto removes the zone's override. Off and heat set an override:
// for pilot wire zones, the "off" and "comfort" presets; for thermostat zones, OffTemperature and HeatTemperature.
func (s *Service) SetHVACMode(ctx context.Context, zoneID string, mode zonestate.HVACMode) error {
	if mode == zonestate.ModeAuto {
		s.ClearOverride(ctx, zoneID)
		return nil
	}
	if mode != zonestate.ModeOff && mode != zonestate.ModeHeat {
		return &zonestate.MappingError{Kind: "hvac mode", Value: string(mode)}
	}

	zone, err := s.client.GetZone(ctx, zoneID)
	if err != nil {
		return err
	}

	switch {
	case zone.SetPointType == comap.PilotWire && mode == zonestate.ModeOff:
		return s.SetPreset(ctx, zoneID, zonestate.PresetOff, 0)
	case zone.SetPointType == comap.PilotWire:
		return s.SetPreset(ctx, zoneID, zonestate.PresetComfort, 0)
	case mode == zonestate.ModeOff:
		return s.SetTemperature(ctx, zoneID, OffTemperature, 0)
	default:
		return s.SetTemperature(ctx, zoneID, HeatTemperature, 0)
	}
}

// AssignSchedule assigns a schedule to a zone in the active program and returns the zone's new state.
func (s *Service) AssignSchedule(ctx context.Context, zoneID, scheduleID string) (zonestate.State, error) {
	if err := s.Programs.AssignSchedule(ctx, zoneID, scheduleID); err != nil {
		return zonestate.State{}, err
	}
	return s.GetZoneState(ctx, zoneID)
}

// AssignScheduleToAllZones assigns a schedule to every zone in the active program.
func (s *Service) AssignScheduleToAllZones(ctx context.Context, scheduleID string) error {
	return s.Programs.AssignScheduleToAllZones(ctx, scheduleID)
}

// SetProgram activates a program.
func (s *Service) SetProgram(ctx context.Context, programID string) error {
	return s.Programs.SetProgram(ctx, programID)
}

// SetAway switches the housing to away mode.
func (s *Service) SetAway(ctx context.Context) error {
	return s.client.LeaveHome(ctx)
}

// SetHome ends away mode.
func (s *Service) SetHome(ctx context.Context) error {
	return s.client.ReturnHome(ctx)
}

// SetHoliday switches holiday mode on or off.
func (s *Service) SetHoliday(ctx context.Context, on bool) error {
	if on {
		return s.client.SetHoliday(ctx)
	}
	return s.client.DeleteHoliday(ctx)
}

// SetAbsence starts or ends an absence.
func (s *Service) SetAbsence(ctx context.Context, on bool) error {
	if on {
		return s.client.SetAbsence(ctx)
	}
	return s.client.DeleteAbsence(ctx)
}

// ScheduleByTitle returns the schedule with the specified title.
func (s *Service) ScheduleByTitle(ctx context.Context, title string) (comap.Schedule, error) {
	return s.Programs.ScheduleByTitle(ctx, title)
}

// ProgramByTitle returns the program with the specified title.
func (s *Service) ProgramByTitle(ctx context.Context, title string) (comap.Program, error) {
	return s.Programs.ProgramByTitle(ctx, title)
}
