package comap

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"
)

// DefaultInstructionDuration is used when a temporary instruction is set without a duration.
const DefaultInstructionDuration = 120 * time.Minute

type temporaryInstructionRequest struct {
	Duration int      `json:"duration"`
	SetPoint SetPoint `json:"set_point"`
}

// SetTemporaryInstruction overrides a zone's schedule for the specified duration. If the zone already has a
// temporary instruction, the Comap API rejects the call with a conflict. SetTemporaryInstruction then removes the
// existing instruction and tries once more. If that attempt conflicts too, it returns a ConflictRetryExhaustedError.
func (c *Client) SetTemporaryInstruction(ctx context.Context, zoneID string, instruction Instruction, duration time.Duration) (ZoneEvents, error) {
	if duration <= 0 {
		duration = DefaultInstructionDuration
	}
	req := temporaryInstructionRequest{
		Duration: int(math.Ceil(duration.Minutes())),
		SetPoint: SetPoint{Instruction: instruction},
	}

	events, err := c.postTemporaryInstruction(ctx, zoneID, req)
	if !IsConflict(err) {
		return events, err
	}

	c.logger.Debug("zone already has a temporary instruction. replacing it", "zone", zoneID)
	c.RemoveTemporaryInstruction(ctx, zoneID)

	if events, err = c.postTemporaryInstruction(ctx, zoneID, req); IsConflict(err) {
		return ZoneEvents{}, &ConflictRetryExhaustedError{ZoneID: zoneID, Err: err}
	}
	return events, err
}

// RemoveTemporaryInstruction removes a zone's temporary instruction, returning the zone to its schedule.
// Failures are logged, not returned.
func (c *Client) RemoveTemporaryInstruction(ctx context.Context, zoneID string) ZoneEvents {
	var raw json.RawMessage
	if err := c.Do(ctx, http.MethodDelete, c.temporaryInstructionPath(zoneID), nil, &raw); err != nil {
		c.logger.Warn("failed to remove temporary instruction", "zone", zoneID, "err", err)
		return ZoneEvents{}
	}
	return decodeZoneEvents(raw)
}

func (c *Client) postTemporaryInstruction(ctx context.Context, zoneID string, req temporaryInstructionRequest) (ZoneEvents, error) {
	var raw json.RawMessage
	err := c.Do(ctx, http.MethodPost, c.temporaryInstructionPath(zoneID), req, &raw)
	return decodeZoneEvents(raw), err
}

func (c *Client) temporaryInstructionPath(zoneID string) string {
	return c.housingPath("thermal-control", "zones", zoneID, "temporary-instruction")
}

// decodeZoneEvents extracts the zone events from a response. Responses in an unexpected format yield no events.
func decodeZoneEvents(raw json.RawMessage) ZoneEvents {
	var events ZoneEvents
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &events)
	}
	return events
}
