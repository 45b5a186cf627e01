package comap

import (
	"context"
	"net/http"
	"net/url"
)

// ProgrammingConnected is the programming type used when assigning a schedule to a zone.
const ProgrammingConnected = "connected"

// GetHousings returns all housings of the account.
func (c *Client) GetHousings(ctx context.Context) ([]Housing, error) {
	var housings []Housing
	err := c.Do(ctx, http.MethodGet, "park/housings", nil, &housings)
	return housings, err
}

// GetThermalDetails returns the thermal state of the housing and all its zones.
func (c *Client) GetThermalDetails(ctx context.Context) (ThermalDetails, error) {
	var details ThermalDetails
	err := c.Do(ctx, http.MethodGet, c.housingPath("thermal-details"), nil, &details)
	return details, err
}

// GetZone returns the thermal state of a single zone.
func (c *Client) GetZone(ctx context.Context, zoneID string) (Zone, error) {
	var zone Zone
	err := c.Do(ctx, http.MethodGet, c.housingPath("thermal-details", "zones", zoneID), nil, &zone)
	return zone, err
}

// GetSchedules returns the schedules defined for the housing.
func (c *Client) GetSchedules(ctx context.Context) ([]Schedule, error) {
	var schedules []Schedule
	err := c.Do(ctx, http.MethodGet, c.housingPath("schedules"), nil, &schedules)
	return schedules, err
}

// GetPrograms returns the programs defined for the housing.
func (c *Client) GetPrograms(ctx context.Context) (Programs, error) {
	var programs Programs
	err := c.Do(ctx, http.MethodGet, c.housingPath("programs"), nil, &programs)
	return programs, err
}

// GetActiveProgram returns the housing's activated program.
func (c *Client) GetActiveProgram(ctx context.Context) (Program, error) {
	programs, err := c.GetPrograms(ctx)
	if err != nil {
		return Program{}, err
	}
	return programs.Active()
}

// GetCustomTemperatures returns the temperatures that named instructions resolve to.
func (c *Client) GetCustomTemperatures(ctx context.Context) (TemperatureLookup, error) {
	var temperatures TemperatureLookup
	err := c.Do(ctx, http.MethodGet, c.housingPath("custom-temperatures"), nil, &temperatures)
	return temperatures, err
}

// GetConnectedObjects returns the devices installed in the housing.
func (c *Client) GetConnectedObjects(ctx context.Context) ([]ConnectedObject, error) {
	var objects []ConnectedObject
	err := c.Do(ctx, http.MethodGet, "park/housings/"+url.PathEscape(c.housingID)+"/connected-objects", nil, &objects)
	return objects, err
}

// LeaveHome switches the housing to away mode.
func (c *Client) LeaveHome(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, c.housingPath("thermal-control", "leave-home"), nil, nil)
}

// ReturnHome cancels away mode set by LeaveHome.
func (c *Client) ReturnHome(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, c.housingPath("thermal-control", "leave-home"), nil, nil)
}

// ComeBackHome cancels a programmed away period.
func (c *Client) ComeBackHome(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, c.housingPath("thermal-control", "come-back-home"), nil, nil)
}

// SetHoliday switches the housing to holiday mode.
func (c *Client) SetHoliday(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, c.housingPath("thermal-control", "absence"), nil, nil)
}

// DeleteHoliday ends holiday mode.
func (c *Client) DeleteHoliday(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, c.housingPath("thermal-control", "absence"), nil, nil)
}

// SetAbsence starts an absence, shifting the housing's schedules.
func (c *Client) SetAbsence(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, c.housingPath("thermal-control", "time-shift"), nil, nil)
}

// DeleteAbsence ends an absence.
func (c *Client) DeleteAbsence(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, c.housingPath("thermal-control", "time-shift"), nil, nil)
}

type assignScheduleRequest struct {
	ScheduleID      string `json:"schedule_id"`
	ProgrammingType string `json:"programming_type"`
}

// AssignSchedule assigns a schedule to a zone in the specified program. If programmingType is blank,
// ProgrammingConnected is used.
func (c *Client) AssignSchedule(ctx context.Context, programID, zoneID, scheduleID, programmingType string) error {
	if programmingType == "" {
		programmingType = ProgrammingConnected
	}
	return c.Do(ctx,
		http.MethodPost,
		c.housingPath("programs", programID, "zones", zoneID),
		assignScheduleRequest{ScheduleID: scheduleID, ProgrammingType: programmingType},
		nil,
	)
}

// ActivateProgram makes the specified program the housing's active program.
func (c *Client) ActivateProgram(ctx context.Context, programID string) error {
	return c.Do(ctx, http.MethodPost, c.housingPath("programs", programID, "activate"), nil, nil)
}
