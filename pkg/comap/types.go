package comap

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"time"
)

// Housing is a home registered with the Comap account.
type Housing struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address any    `json:"address,omitempty"`
}

// HeatingSystemState is the housing-wide heating flag. An empty value means the housing doesn't report one.
type HeatingSystemState string

const (
	HeatingOn  HeatingSystemState = "on"
	HeatingOff HeatingSystemState = "off"
)

// ThermalDetails is the thermal state of a housing and all of its zones.
type ThermalDetails struct {
	HeatingSystemState HeatingSystemState `json:"heating_system_state,omitempty"`
	Zones              []Zone             `json:"zones"`
	Events             HousingEvents      `json:"events,omitempty"`
}

// Zone returns the zone with the specified ID.
func (d ThermalDetails) Zone(id string) (Zone, bool) {
	for _, zone := range d.Zones {
		if zone.ID == id {
			return zone, true
		}
	}
	return Zone{}, false
}

// ZoneForObject returns the zone that the connected object with the specified serial number belongs to.
func (d ThermalDetails) ZoneForObject(serialNumber string) (Zone, bool) {
	for _, zone := range d.Zones {
		if slices.Contains(zone.ConnectedObjects, serialNumber) {
			return zone, true
		}
	}
	return Zone{}, false
}

// HousingEvents are the housing-wide events, keyed by event type.
type HousingEvents map[string]json.RawMessage

const (
	eventHoliday = "absence"
	eventAbsence = "time_shift"
)

// Has returns true if an event of the specified type is active.
func (e HousingEvents) Has(event string) bool {
	raw, ok := e[event]
	return ok && len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// Holiday returns true if the housing is in holiday mode.
func (e HousingEvents) Holiday() bool {
	return e.Has(eventHoliday)
}

// Absence returns true if the housing has an active absence.
func (e HousingEvents) Absence() bool {
	return e.Has(eventAbsence)
}

// Active returns the types of all active events, in alphabetical order.
func (e HousingEvents) Active() []string {
	events := make([]string, 0, len(e))
	for event := range e {
		if e.Has(event) {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}

// SetPointType determines how a zone is controlled.
type SetPointType string

const (
	CustomTemperature  SetPointType = "custom_temperature"
	DefinedTemperature SetPointType = "defined_temperature"
	PilotWire          SetPointType = "pilot_wire"
)

// IsThermostat returns true if the zone's instructions resolve to a temperature.
func (t SetPointType) IsThermostat() bool {
	return t == CustomTemperature || t == DefinedTemperature
}

// Zone is a heating zone of a housing.
type Zone struct {
	ID                   string       `json:"id"`
	Title                string       `json:"title"`
	SetPointType         SetPointType `json:"set_point_type"`
	Temperature          *float64     `json:"temperature,omitempty"`
	Humidity             *float64     `json:"humidity,omitempty"`
	HeatingStatus        string       `json:"heating_status,omitempty"`
	SetPoint             SetPoint     `json:"set_point"`
	Events               ZoneEvents   `json:"events"`
	ConnectedObjects     []string     `json:"connected_objects,omitempty"`
	LastPresenceDetected Timestamp    `json:"last_presence_detected"`
	OpenWindow           bool         `json:"open_window,omitempty"`
}

// UnmarshalJSON decodes a zone. A zone without an id is rejected with a StateError.
func (z *Zone) UnmarshalJSON(data []byte) error {
	type plain Zone
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ID == "" {
		return &StateError{Reason: "zone " + strconv.Quote(p.Title) + " has no id"}
	}
	*z = Zone(p)
	return nil
}

// SetPoint holds a zone's current instruction.
type SetPoint struct {
	Instruction Instruction `json:"instruction"`
}

// ZoneEvents are the events active for a zone.
type ZoneEvents struct {
	TemporaryInstruction *TemporaryInstruction `json:"temporary_instruction,omitempty"`
}

// TemporaryInstruction is an override of the zone's schedule, active until EndAt.
type TemporaryInstruction struct {
	SetPoint SetPoint  `json:"set_point"`
	EndAt    Timestamp `json:"end_at"`
}

// Instruction is a set point instruction. Pilot wire and defined temperature zones use named instructions
// (e.g. "comfort"); custom temperature zones use a temperature in degrees celsius.
type Instruction struct {
	key           string
	temperature   float64
	isTemperature bool
}

// KeyInstruction returns a named instruction.
func KeyInstruction(key string) Instruction {
	return Instruction{key: key}
}

// TemperatureInstruction returns an instruction for a temperature in degrees celsius.
func TemperatureInstruction(temperature float64) Instruction {
	return Instruction{temperature: temperature, isTemperature: true}
}

// Key returns the instruction's name, if it's a named instruction.
func (i Instruction) Key() (string, bool) {
	return i.key, !i.isTemperature && i.key != ""
}

// Temperature returns the instruction's temperature, if it's a temperature instruction.
func (i Instruction) Temperature() (float64, bool) {
	return i.temperature, i.isTemperature
}

// IsZero returns true if the instruction is empty.
func (i Instruction) IsZero() bool {
	return !i.isTemperature && i.key == ""
}

func (i Instruction) String() string {
	if i.isTemperature {
		return strconv.FormatFloat(i.temperature, 'f', -1, 64)
	}
	return i.key
}

func (i Instruction) MarshalJSON() ([]byte, error) {
	switch {
	case i.isTemperature:
		return json.Marshal(i.temperature)
	case i.key != "":
		return json.Marshal(i.key)
	default:
		return []byte("null"), nil
	}
}

func (i *Instruction) UnmarshalJSON(data []byte) error {
	*i = Instruction{}
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &i.key)
	default:
		i.isTemperature = true
		return json.Unmarshal(data, &i.temperature)
	}
}

func (i Instruction) MarshalYAML() (any, error) {
	if i.isTemperature {
		return i.temperature, nil
	}
	return i.key, nil
}

// Timestamp is a point in time reported by the Comap API. Values that can't be parsed decode as the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	var value string
	if err := json.Unmarshal(data, &value); err != nil || value == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			t.Time = ts
			break
		}
	}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return nil, nil
	}
	return t.Time, nil
}

// TemperatureLookup maps named instructions to temperatures, for zones of type defined_temperature.
// The Comap API reports these at the top level, and in the "connected" and "smart" sections.
type TemperatureLookup struct {
	TopLevel  map[string]float64 `json:"top_level,omitempty"`
	Connected map[string]float64 `json:"connected,omitempty"`
	Smart     map[string]float64 `json:"smart,omitempty"`
}

// Lookup returns the temperature for a named instruction. The top level takes precedence over "connected",
// which takes precedence over "smart".
func (l TemperatureLookup) Lookup(key string) (float64, bool) {
	for _, section := range []map[string]float64{l.TopLevel, l.Connected, l.Smart} {
		if value, ok := section[key]; ok {
			return value, true
		}
	}
	return 0, false
}

// UnmarshalJSON decodes the custom-temperatures document. Entries that aren't numbers are ignored.
func (l *TemperatureLookup) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = TemperatureLookup{TopLevel: make(map[string]float64)}
	for key, value := range raw {
		switch key {
		case "connected":
			l.Connected = decodeTemperatures(value)
		case "smart":
			l.Smart = decodeTemperatures(value)
		default:
			var temperature float64
			if json.Unmarshal(value, &temperature) == nil {
				l.TopLevel[key] = temperature
			}
		}
	}
	return nil
}

func decodeTemperatures(data json.RawMessage) map[string]float64 {
	var raw map[string]json.RawMessage
	if json.Unmarshal(data, &raw) != nil {
		return nil
	}
	temperatures := make(map[string]float64, len(raw))
	for key, value := range raw {
		var temperature float64
		if json.Unmarshal(value, &temperature) == nil {
			temperatures[key] = temperature
		}
	}
	return temperatures
}

// Schedule is a weekly heating schedule that can be assigned to a zone.
type Schedule struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Program assigns a schedule to each zone of a housing. Only one program is active at any time.
type Program struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	IsActivated bool          `json:"is_activated"`
	Zones       []ProgramZone `json:"zones"`
}

// ScheduleID returns the ID of the schedule assigned to the zone.
func (p Program) ScheduleID(zoneID string) (string, bool) {
	for _, zone := range p.Zones {
		if zone.ID == zoneID {
			return zone.ScheduleID, zone.ScheduleID != ""
		}
	}
	return "", false
}

// ProgramZone is the assignment of a schedule to a zone.
type ProgramZone struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id"`
}

// Programs is the list of programs of a housing.
type Programs struct {
	Programs []Program `json:"programs"`
}

// Active returns the activated program. If no program, or more than one program, is activated, Active returns a StateError.
func (p Programs) Active() (Program, error) {
	var active []Program
	for _, program := range p.Programs {
		if program.IsActivated {
			active = append(active, program)
		}
	}
	if len(active) != 1 {
		return Program{}, &StateError{Reason: strconv.Itoa(len(active)) + " activated programs found"}
	}
	return active[0], nil
}

// ConnectedObject is a device (thermostat, pilot wire module, gateway) installed in a housing.
type ConnectedObject struct {
	SerialNumber      string    `json:"serial_number"`
	Model             string    `json:"model,omitempty"`
	VoltagePercent    *float64  `json:"voltage_percent,omitempty"`
	VoltageStatus     string    `json:"voltage_status,omitempty"`
	LastCommunication Timestamp `json:"last_communication_time"`
}

// HasBattery returns true if the object reports a battery level.
func (o ConnectedObject) HasBattery() bool {
	return o.VoltagePercent != nil
}
