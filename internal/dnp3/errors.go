package dnp3

import "errors"

var (
	// ErrUnsupportedCommandType is returned for a control type missing from
	// the control point table.
	ErrUnsupportedCommandType = errors.New("dnp3: unsupported command type")

	// ErrUnsupportedField is returned for a deadband field missing from the
	// table of the plant's category, or an unknown category.
	ErrUnsupportedField = errors.New("dnp3: unsupported deadband field")

	// ErrValueOutOfRange is returned when a value does not fit the signed
	// 16-bit analog output the master writes, or is not a finite number.
	ErrValueOutOfRange = errors.New("dnp3: value out of range")

	// ErrInvalidPointTable is returned by NewPointTables for a bad table.
	ErrInvalidPointTable = errors.New("dnp3: invalid point table")
)
