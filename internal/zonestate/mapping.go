package zonestate

import (
	"strconv"

	"github.com/clambin/comap-monitor/pkg/comap"
)

// HVACMode is the operating mode of a zone.
type HVACMode string

const (
	ModeOff  HVACMode = "off"
	ModeAuto HVACMode = "auto"
	ModeHeat HVACMode = "heat"
)

// HVACAction is what a zone is currently doing.
type HVACAction string

const (
	ActionOff     HVACAction = "off"
	ActionHeating HVACAction = "heating"
	ActionIdle    HVACAction = "idle"
)

// Presets for pilot wire zones.
const (
	PresetOff           = "off"
	PresetAway          = "away"
	PresetEco           = "eco"
	PresetComfort       = "comfort"
	PresetComfortMinus1 = "comfort -1"
	PresetComfortMinus2 = "comfort -2"
)

// MappingError is returned when a value received from Comap, or requested by the user, has no known mapping.
type MappingError struct {
	Kind  string
	Value string
}

func (e *MappingError) Error() string {
	return "no " + e.Kind + " mapping for " + strconv.Quote(e.Value)
}

var presetKeys = []struct {
	key    string
	preset string
}{
	{key: "stop", preset: PresetOff},
	{key: "frost_protection", preset: PresetAway},
	{key: "eco", preset: PresetEco},
	{key: "comfort", preset: PresetComfort},
	{key: "comfort_minus1", preset: PresetComfortMinus1},
	{key: "comfort_minus2", preset: PresetComfortMinus2},
}

// Presets returns all supported presets.
func Presets() []string {
	presets := make([]string, len(presetKeys))
	for i, entry := range presetKeys {
		presets[i] = entry.preset
	}
	return presets
}

// PresetForKey returns the preset for a pilot wire instruction.
func PresetForKey(key string) (string, error) {
	for _, entry := range presetKeys {
		if entry.key == key {
			return entry.preset, nil
		}
	}
	return "", &MappingError{Kind: "preset", Value: key}
}

// KeyForPreset returns the pilot wire instruction for a preset.
func KeyForPreset(preset string) (string, error) {
	for _, entry := range presetKeys {
		if entry.preset == preset {
			return entry.key, nil
		}
	}
	return "", &MappingError{Kind: "instruction", Value: preset}
}

// ResolveHVACMode determines a zone's HVAC mode. A zone with a temporary instruction is always in heat mode.
// Otherwise, the housing's heating flag decides: no flag means auto, "off" means off and "on" means auto.
// If assist is set, "on" maps to heat instead, for voice assistants that don't support auto mode.
func ResolveHVACMode(heating comap.HeatingSystemState, zone comap.Zone, assist bool) (HVACMode, error) {
	if zone.Events.TemporaryInstruction != nil {
		return ModeHeat, nil
	}
	switch heating {
	case "":
		return ModeAuto, nil
	case comap.HeatingOff:
		return ModeOff, nil
	case comap.HeatingOn:
		if assist {
			return ModeHeat, nil
		}
		return ModeAuto, nil
	default:
		return "", &MappingError{Kind: "heating system state", Value: string(heating)}
	}
}

// ResolveHVACAction determines what a zone is currently doing.
func ResolveHVACAction(heating comap.HeatingSystemState, heatingStatus string) (HVACAction, error) {
	if heating == comap.HeatingOff {
		return ActionOff, nil
	}
	switch heatingStatus {
	case "heating":
		return ActionHeating, nil
	case "cooling", "":
		return ActionIdle, nil
	default:
		return "", &MappingError{Kind: "heating status", Value: heatingStatus}
	}
}

// TargetTemperature returns the target temperature of a custom or defined temperature zone. Defined temperature
// instructions that aren't found in the lookup resolve to zero. For other zones, TargetTemperature returns false.
func TargetTemperature(zone comap.Zone, temperatures comap.TemperatureLookup) (float64, bool) {
	switch zone.SetPointType {
	case comap.CustomTemperature:
		temperature, _ := zone.SetPoint.Instruction.Temperature()
		return temperature, true
	case comap.DefinedTemperature:
		if temperature, ok := zone.SetPoint.Instruction.Temperature(); ok {
			return temperature, true
		}
		key, _ := zone.SetPoint.Instruction.Key()
		temperature, _ := temperatures.Lookup(key)
		return temperature, true
	default:
		return 0, false
	}
}
