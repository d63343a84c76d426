package dnp3

import (
	"strconv"
)

// Kind classifies a command. Polls are read-only and safe to repeat;
// writes change device state and are never repeated automatically.
type Kind string

const (
	KindPoll  Kind = "poll"
	KindWrite Kind = "write"
)

// Sub-command selectors understood by the sender.
const (
	PollSelector  = "poll"
	WriteSelector = "1"
)

// Target addresses one outstation: its gateway IP and DNP3 link address.
type Target struct {
	IPAddress string
	Address   int
}

// DeviceKey identifies the physical device a command talks to.
func (t Target) DeviceKey() string {
	return t.IPAddress + "/" + strconv.Itoa(t.Address)
}

// Command is an encoded request ready for the master.
type Command struct {
	Kind   Kind
	Target Target
	Args   []string
}

// ControlCommand is a power-control intent.
type ControlCommand struct {
	Type  string
	Value float64
}

// DeadbandSetting is a deadband intent. Value is a fraction, e.g. 0.025.
type DeadbandSetting struct {
	Field    string
	Value    float64
	Category string
}

// Control command types.
const (
	TypePowerFactor      = "power_factor"
	TypeActivePower      = "active_power"
	TypeReactivePower    = "reactive_power"
	TypeVPSet            = "vpset"
	TypeAutonomicControl = "autonomic_control"
)

// Plant categories with a deadband table.
const (
	CategoryGrid          = "grid"
	CategoryEnergyStorage = "energyStorage"
)
