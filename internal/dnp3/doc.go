// Package dnp3 turns operator intents into the positional argument vectors
// understood by the external DNP3 master sender.
//
// Three encodings exist:
//
//	poll:     ["poll", ip, address]
//	control:  ["1", ip, pointIndex, value, address]
//	deadband: ["1", ip, pointIndex, round(value*10000), address]
//
// Point indices come from immutable PointTables validated at startup.
// Encoding performs no I/O; an unknown type or field is reported before
// anything is dispatched.
package dnp3
