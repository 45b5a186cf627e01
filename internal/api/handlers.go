package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getHousing(c *gin.Context) {
	summary, err := h.thermostat.GetHousingSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) getZones(c *gin.Context) {
	states, err := h.thermostat.GetZoneStates(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	zones := make([]zonestate.State, 0, len(states))
	for _, state := range states {
		zones = append(zones, state)
	}
	slices.SortFunc(zones, func(a, b zonestate.State) int { return strings.Compare(a.Title, b.Title) })
	c.JSON(http.StatusOK, zones)
}

func (h *Handler) getZone(c *gin.Context) {
	state, err := h.thermostat.GetZoneState(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// overrideRequest sets exactly one of Temperature, Preset or HVACMode.
type overrideRequest struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Preset      string   `json:"preset,omitempty"`
	HVACMode    string   `json:"hvac_mode,omitempty"`
	DurationMin int      `json:"duration_min,omitempty"`
}

func (r overrideRequest) validate() string {
	var count int
	if r.Temperature != nil {
		count++
	}
	if r.Preset != "" {
		count++
	}
	if r.HVACMode != "" {
		count++
	}
	switch {
	case count != 1:
		return "exactly one of temperature, preset or hvac_mode is required"
	case r.DurationMin < 0:
		return "duration_min must not be negative"
	case r.Preset != "":
		if _, err := zonestate.KeyForPreset(r.Preset); err != nil {
			return "invalid preset: " + r.Preset
		}
	case r.HVACMode != "":
		switch zonestate.HVACMode(r.HVACMode) {
		case zonestate.ModeOff, zonestate.ModeAuto, zonestate.ModeHeat:
		default:
			return "invalid hvac_mode: " + r.HVACMode
		}
	}
	return ""
}

func (h *Handler) setOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		badRequest(c, msg)
		return
	}

	ctx := c.Request.Context()
	zoneID := c.Param("id")
	duration := time.Duration(req.DurationMin) * time.Minute

	var err error
	switch {
	case req.Temperature != nil:
		err = h.thermostat.SetTemperature(ctx, zoneID, *req.Temperature, duration)
	case req.Preset != "":
		err = h.thermostat.SetPreset(ctx, zoneID, req.Preset, duration)
	default:
		err = h.thermostat.SetHVACMode(ctx, zoneID, zonestate.HVACMode(req.HVACMode))
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.getZone(c)
}

func (h *Handler) clearOverride(c *gin.Context) {
	h.thermostat.ClearOverride(c.Request.Context(), c.Param("id"))
	h.getZone(c)
}

type scheduleRequest struct {
	ScheduleID string `json:"schedule_id" binding:"required"`
}

func (h *Handler) assignSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	state, err := h.thermostat.AssignSchedule(c.Request.Context(), c.Param("id"), req.ScheduleID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type programRequest struct {
	ProgramID string `json:"program_id" binding:"required"`
}

func (h *Handler) setProgram(c *gin.Context) {
	var req programRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	if err := h.thermostat.SetProgram(c.Request.Context(), req.ProgramID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setAway(c *gin.Context) {
	if err := h.thermostat.SetAway(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setHome(c *gin.Context) {
	if err := h.thermostat.SetHome(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setHoliday(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.thermostat.SetHoliday(c.Request.Context(), on); err != nil {
			h.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) setAbsence(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.thermostat.SetAbsence(c.Request.Context(), on); err != nil {
			h.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
