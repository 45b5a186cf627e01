// Package programs manages the schedules and programs of a Comap housing.
package programs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/clambin/go-common/set"
)

// ComapClient contains the Comap API calls needed by the Manager.
type ComapClient interface {
	GetPrograms(ctx context.Context) (comap.Programs, error)
	GetSchedules(ctx context.Context) ([]comap.Schedule, error)
	GetThermalDetails(ctx context.Context) (comap.ThermalDetails, error)
	AssignSchedule(ctx context.Context, programID, zoneID, scheduleID, programmingType string) error
	ActivateProgram(ctx context.Context, programID string) error
}

// Manager reads and changes which schedule each zone follows.
type Manager struct {
	client ComapClient
	logger *slog.Logger
}

func New(client ComapClient, logger *slog.Logger) *Manager {
	return &Manager{client: client, logger: logger}
}

// ActiveProgram returns the housing's activated program. If no program, or more than one program, is activated,
// ActiveProgram returns a comap.StateError.
func (m *Manager) ActiveProgram(ctx context.Context) (comap.Program, error) {
	programs, err := m.client.GetPrograms(ctx)
	if err != nil {
		return comap.Program{}, fmt.Errorf("programs: %w", err)
	}
	return programs.Active()
}

// Schedules returns the schedules assigned to each zone in the active program.
func (m *Manager) Schedules(ctx context.Context) (zonestate.ScheduleIndex, error) {
	program, err := m.ActiveProgram(ctx)
	if err != nil {
		return nil, err
	}
	schedules, err := m.client.GetSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("schedules: %w", err)
	}
	return zonestate.NewScheduleIndex(program, schedules), nil
}

// ActiveSchedule returns the schedule assigned to the zone in the active program.
func (m *Manager) ActiveSchedule(ctx context.Context, zoneID string) (comap.Schedule, bool, error) {
	index, err := m.Schedules(ctx)
	if err != nil {
		return comap.Schedule{}, false, err
	}
	schedule, ok := index[zoneID]
	return schedule, ok, nil
}

type assignOptions struct {
	programID       string
	programmingType string
}

// AssignOption configures AssignSchedule.
type AssignOption func(*assignOptions)

// WithProgram assigns the schedule in the specified program, rather than in the active program.
func WithProgram(programID string) AssignOption {
	return func(o *assignOptions) { o.programID = programID }
}

// WithProgrammingType overrides comap.ProgrammingConnected.
func WithProgrammingType(programmingType string) AssignOption {
	return func(o *assignOptions) { o.programmingType = programmingType }
}

// AssignSchedule assigns a schedule to a zone. Unless WithProgram is used, the schedule is assigned in the active program.
func (m *Manager) AssignSchedule(ctx context.Context, zoneID, scheduleID string, opts ...AssignOption) error {
	options := assignOptions{programmingType: comap.ProgrammingConnected}
	for _, opt := range opts {
		opt(&options)
	}
	if options.programID == "" {
		program, err := m.ActiveProgram(ctx)
		if err != nil {
			return err
		}
		options.programID = program.ID
	}
	m.logger.Debug("assigning schedule", "zone", zoneID, "schedule", scheduleID, "program", options.programID)
	if err := m.client.AssignSchedule(ctx, options.programID, zoneID, scheduleID, options.programmingType); err != nil {
		return fmt.Errorf("assign schedule: %w", err)
	}
	return nil
}

// AssignScheduleToAllZones assigns a schedule to every zone of the housing in the active program.
// Zones that already follow the schedule are skipped.
func (m *Manager) AssignScheduleToAllZones(ctx context.Context, scheduleID string) error {
	program, err := m.ActiveProgram(ctx)
	if err != nil {
		return err
	}
	details, err := m.client.GetThermalDetails(ctx)
	if err != nil {
		return fmt.Errorf("thermal details: %w", err)
	}

	assigned := set.New[string]()
	for _, zone := range program.Zones {
		if zone.ScheduleID == scheduleID {
			assigned.Add(zone.ID)
		}
	}

	for _, zone := range details.Zones {
		if assigned.Contains(zone.ID) {
			continue
		}
		if err = m.AssignSchedule(ctx, zone.ID, scheduleID, WithProgram(program.ID)); err != nil {
			return fmt.Errorf("zone %s: %w", zone.Title, err)
		}
	}
	return nil
}

// SetProgram activates a program.
func (m *Manager) SetProgram(ctx context.Context, programID string) error {
	m.logger.Debug("activating program", "program", programID)
	if err := m.client.ActivateProgram(ctx, programID); err != nil {
		return fmt.Errorf("activate program: %w", err)
	}
	return nil
}

// ScheduleByTitle returns the schedule with the specified title. Titles are matched case-insensitively.
func (m *Manager) ScheduleByTitle(ctx context.Context, title string) (comap.Schedule, error) {
	schedules, err := m.client.GetSchedules(ctx)
	if err != nil {
		return comap.Schedule{}, fmt.Errorf("schedules: %w", err)
	}
	for _, schedule := range schedules {
		if strings.EqualFold(schedule.Title, title) {
			return schedule, nil
		}
	}
	return comap.Schedule{}, fmt.Errorf("invalid schedule name: %q", title)
}

// ProgramByTitle returns the program with the specified title. Titles are matched case-insensitively.
func (m *Manager) ProgramByTitle(ctx context.Context, title string) (comap.Program, error) {
	programs, err := m.client.GetPrograms(ctx)
	if err != nil {
		return comap.Program{}, fmt.Errorf("programs: %w", err)
	}
	for _, program := range programs.Programs {
		if strings.EqualFold(program.Title, title) {
			return program, nil
		}
	}
	return comap.Program{}, fmt.Errorf("invalid program name: %q", title)
}
