// Package plant holds the registry of DNP3 gateways and the plants (outstations)
// behind them.
//
// A gateway is a physical DNP3 device reachable at an IP address; each plant
// behind it has a unique DNP3 link address on that gateway. The package
// provides:
//
//   - Registry: read access used by the control operations
//   - SQLiteRepository: the persistent implementation
//   - Allocator: per-gateway address assignment (first address 4, then max+1)
//   - Registration: validated plant creation with automatic addressing
//
// Address allocation is serialised per gateway and backed by the
// UNIQUE(gateway_id, dnp3_address) constraint, so two concurrent
// registrations on one gateway never share an address.
package plant
