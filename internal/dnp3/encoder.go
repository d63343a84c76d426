package dnp3

import (
	"fmt"
	"math"
	"strconv"
)

// DeadbandScale converts a deadband fraction to the fixed-point integer
// the outstation expects (four decimal digits).
const DeadbandScale = 10000

// Encoder builds argument vectors from point tables.
type Encoder struct {
	points *PointTables
}

// NewEncoder creates an encoder over points.
func NewEncoder(points *PointTables) *Encoder {
	return &Encoder{points: points}
}

// EncodePoll builds an integrity poll for target.
func (e *Encoder) EncodePoll(target Target) Command {
	return Command{
		Kind:   KindPoll,
		Target: target,
		Args:   []string{PollSelector, target.IPAddress, strconv.Itoa(target.Address)},
	}
}

// EncodePowerControl builds an analog output write for a control type.
func (e *Encoder) EncodePowerControl(target Target, cmd ControlCommand) (Command, error) {
	idx, ok := e.points.Control().Lookup(cmd.Type)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnsupportedCommandType, cmd.Type)
	}
	if err := checkAnalogOutput(cmd.Value); err != nil {
		return Command{}, fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return writeCommand(target, idx, FormatValue(cmd.Value)), nil
}

// EncodeDeadband builds a deadband write. The fraction is scaled by
// DeadbandScale and rounded to the nearest integer.
func (e *Encoder) EncodeDeadband(target Target, setting DeadbandSetting) (Command, error) {
	idx, err := e.DeadbandIndex(setting.Category, setting.Field)
	if err != nil {
		return Command{}, err
	}

	scaled, err := ScaleDeadband(setting.Value)
	if err != nil {
		return Command{}, fmt.Errorf("%s: %w", setting.Field, err)
	}
	return writeCommand(target, idx, strconv.Itoa(scaled)), nil
}

// DeadbandIndex resolves a deadband field for a category without building
// a command, so callers can reject bad input before any lookup.
func (e *Encoder) DeadbandIndex(category, field string) (int, error) {
	table, ok := e.points.Deadband(category)
	if !ok {
		return 0, fmt.Errorf("%w: %q (unknown category %q)", ErrUnsupportedField, field, category)
	}
	idx, ok := table.Lookup(field)
	if !ok {
		return 0, fmt.Errorf("%w: %q for category %q", ErrUnsupportedField, field, category)
	}
	return idx, nil
}

// ScaleDeadband converts a fraction to its fixed-point representation.
func ScaleDeadband(value float64) (int, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %v", ErrValueOutOfRange, value)
	}
	scaled := math.Round(value * DeadbandScale)
	if err := checkAnalogOutput(scaled); err != nil {
		return 0, err
	}
	return int(scaled), nil
}

// FormatValue renders a value in its shortest decimal form: 50 -> "50",
// 0.95 -> "0.95".
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkAnalogOutput(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < math.MinInt16 || v > math.MaxInt16 {
		return fmt.Errorf("%w: %v not within %d..%d", ErrValueOutOfRange, v, math.MinInt16, math.MaxInt16)
	}
	return nil
}

func writeCommand(target Target, idx int, value string) Command {
	return Command{
		Kind:   KindWrite,
		Target: target,
		Args: []string{
			WriteSelector,
			target.IPAddress,
			strconv.Itoa(idx),
			value,
			strconv.Itoa(target.Address),
		},
	}
}
