// Package control implements the plant operations offered to operators:
// listing a gateway's meters, integrity polls, power set-points and deadband
// thresholds.
//
// Each operation resolves the plant and its gateway through the plant
// registry, encodes a command with the dnp3 encoder and hands it to the
// master dispatcher. Unknown plants and invalid input are rejected before
// anything is dispatched.
//
// Only polls are retried. A write whose outcome is uncertain is reported as
// such and recorded; the operator re-polls to learn what the device did.
package control
