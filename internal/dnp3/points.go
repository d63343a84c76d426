package dnp3

import (
	"fmt"
	"maps"
	"slices"
)

const maxPointIndex = 65535

// PointTable maps a logical name to a DNP3 point index. It is immutable
// once built.
type PointTable struct {
	name    string
	indices map[string]int
}

// Lookup returns the point index for key.
func (t PointTable) Lookup(key string) (int, bool) {
	idx, ok := t.indices[key]
	return idx, ok
}

// Names returns the keys in point-index order.
func (t PointTable) Names() []string {
	names := slices.Collect(maps.Keys(t.indices))
	slices.SortFunc(names, func(a, b string) int {
		return t.indices[a] - t.indices[b]
	})
	return names
}

// Len returns the number of entries.
func (t PointTable) Len() int {
	return len(t.indices)
}

// DefaultControlPoints is the analog output table for power control.
func DefaultControlPoints() map[string]int {
	return map[string]int{
		TypePowerFactor:      0,
		TypeActivePower:      1,
		TypeReactivePower:    2,
		TypeVPSet:            3,
		TypeAutonomicControl: 4,
	}
}

// DefaultDeadbandPoints is the deadband table per plant category.
func DefaultDeadbandPoints() map[string]map[string]int {
	return map[string]map[string]int{
		CategoryGrid: {
			"currentPhaseA": 5,
			"currentPhaseB": 6,
			"currentPhaseC": 7,
			"currentPhaseN": 8,
			"voltagePhaseA": 9,
			"voltagePhaseB": 10,
			"voltagePhaseC": 11,
			"P_SUM":         12,
			"Q_SUM":         13,
			"PF_AVG":        14,
			"frequency":     15,
			"irradiance":    16,
			"wind_speed":    17,
		},
		CategoryEnergyStorage: {
			"P_SUM": 7,
		},
	}
}

// PointTables holds the control table and one deadband table per category.
type PointTables struct {
	control  PointTable
	deadband map[string]PointTable
}

// NewPointTables validates and freezes the given tables. A nil or empty
// control map, or deadband map, is replaced by the defaults.
func NewPointTables(control map[string]int, deadband map[string]map[string]int) (*PointTables, error) {
	if len(control) == 0 {
		control = DefaultControlPoints()
	}
	if len(deadband) == 0 {
		deadband = DefaultDeadbandPoints()
	}

	ct, err := newPointTable("control", control)
	if err != nil {
		return nil, err
	}

	pt := &PointTables{
		control:  ct,
		deadband: make(map[string]PointTable, len(deadband)),
	}
	for category, fields := range deadband {
		if category == "" {
			return nil, fmt.Errorf("%w: deadband category name is empty", ErrInvalidPointTable)
		}
		t, err := newPointTable("deadband."+category, fields)
		if err != nil {
			return nil, err
		}
		pt.deadband[category] = t
	}
	return pt, nil
}

// DefaultPointTables returns the built-in tables.
func DefaultPointTables() *PointTables {
	pt, err := NewPointTables(nil, nil)
	if err != nil {
		panic("dnp3: default point tables are invalid: " + err.Error())
	}
	return pt
}

// Control returns the control point table.
func (p *PointTables) Control() PointTable {
	return p.control
}

// Deadband returns the deadband table for category.
func (p *PointTables) Deadband(category string) (PointTable, bool) {
	t, ok := p.deadband[category]
	return t, ok
}

// Categories returns the categories that have a deadband table, sorted.
func (p *PointTables) Categories() []string {
	return slices.Sorted(maps.Keys(p.deadband))
}

func newPointTable(name string, entries map[string]int) (PointTable, error) {
	if len(entries) == 0 {
		return PointTable{}, fmt.Errorf("%w: %s is empty", ErrInvalidPointTable, name)
	}

	indices := make(map[string]int, len(entries))
	owner := make(map[int]string, len(entries))
	for key, idx := range entries {
		if key == "" {
			return PointTable{}, fmt.Errorf("%w: %s has an empty key", ErrInvalidPointTable, name)
		}
		if idx < 0 || idx > maxPointIndex {
			return PointTable{}, fmt.Errorf("%w: %s.%s index %d outside 0-%d",
				ErrInvalidPointTable, name, key, idx, maxPointIndex)
		}
		if other, dup := owner[idx]; dup {
			a, b := min(key, other), max(key, other)
			return PointTable{}, fmt.Errorf("%w: %s index %d used by both %s and %s",
				ErrInvalidPointTable, name, idx, a, b)
		}
		owner[idx] = key
		indices[key] = idx
	}
	return PointTable{name: name, indices: indices}, nil
}
