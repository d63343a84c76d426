// Package master dispatches encoded DNP3 commands to the external master.
//
// The master speaks DNP3 to the gateways; this package only invokes its
// sender executable with a positional argument vector and decodes what it
// prints. A Locator finds where the sender runs:
//
//   - ProcessLocator runs it on this host, next to a supervised Daemon
//   - DockerLocator runs it inside the master service's container
//
// Dispatcher adds the delivery rules on top:
//
//   - commands to one device (gateway IP + DNP3 address) never overlap
//   - at most max_concurrent invocations run at once across all devices
//   - a caller that stops waiting gets ErrUncertainOutcome; the invocation
//     keeps running under its own hard limit and the device stays locked
//     until it really ends
//
// Dispatcher never retries. Whether a command may be repeated is decided
// by the caller from dnp3.Kind.
package master
