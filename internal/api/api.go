// Package api exposes the state of a Comap housing, and the operations on it, as a REST API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clambin/comap-monitor/internal/thermostat"
	"github.com/clambin/comap-monitor/internal/zonestate"
	"github.com/clambin/comap-monitor/pkg/comap"
	"github.com/gin-gonic/gin"
)

// Thermostat contains the operations offered by the API.
type Thermostat interface {
	GetHousingSummary(ctx context.Context) (thermostat.HousingSummary, error)
	GetZoneStates(ctx context.Context) (map[string]zonestate.State, error)
	GetZoneState(ctx context.Context, zoneID string) (zonestate.State, error)
	SetTemperature(ctx context.Context, zoneID string, temperature float64, duration time.Duration) error
	SetPreset(ctx context.Context, zoneID string, preset string, duration time.Duration) error
	SetHVACMode(ctx context.Context, zoneID string, mode zonestate.HVACMode) error
	ClearOverride(ctx context.Context, zoneID string)
	AssignSchedule(ctx context.Context, zoneID, scheduleID string) (zonestate.State, error)
	SetProgram(ctx context.Context, programID string) error
	SetAway(ctx context.Context) error
	SetHome(ctx context.Context) error
	SetHoliday(ctx context.Context, on bool) error
	SetAbsence(ctx context.Context, on bool) error
}

// Handler serves the REST API.
type Handler struct {
	thermostat Thermostat
	logger     *slog.Logger
}

func New(t Thermostat, logger *slog.Logger) *Handler {
	return &Handler{thermostat: t, logger: logger}
}

// Router returns the gin router with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.logRequest)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/housing", h.getHousing)
		v1.PUT("/program", h.setProgram)
		v1.PUT("/away", h.setAway)
		v1.DELETE("/away", h.setHome)
		v1.PUT("/holiday", h.setHoliday(true))
		v1.DELETE("/holiday", h.setHoliday(false))
		v1.PUT("/absence", h.setAbsence(true))
		v1.DELETE("/absence", h.setAbsence(false))
	}
	zones := v1.Group("/zones")
	{
		zones.GET("", h.getZones)
		zones.GET("/:id", h.getZone)
		zones.PUT("/:id/override", h.setOverride)
		zones.DELETE("/:id/override", h.clearOverride)
		zones.PUT("/:id/schedule", h.assignSchedule)
	}
	return router
}

func (h *Handler) logRequest(c *gin.Context) {
	start := time.Now()
	c.Next()
	h.logger.Debug("request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Int("code", c.Writer.Status()),
		slog.Duration("latency", time.Since(start)),
	)
}

// fail writes err to the client. Comap errors are mapped to the corresponding HTTP status.
func (h *Handler) fail(c *gin.Context, err error) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("err", err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func statusCode(err error) int {
	var authErr *comap.AuthError
	var mappingErr *zonestate.MappingError
	var stateErr *comap.StateError
	var conflictErr *comap.ConflictRetryExhaustedError
	var apiErr *comap.APIError

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &mappingErr), errors.As(err, &stateErr):
		return http.StatusBadGateway
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode < http.StatusBadRequest {
			return http.StatusBadGateway
		}
		return apiErr.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
