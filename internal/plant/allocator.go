package plant

import (
	"context"
	"fmt"

	"github.com/dreams-grid/dreams-core/internal/keylock"
)

// FirstAddress is assigned to the first plant on an empty gateway.
// Addresses below it are kept free for gateway-local use.
const FirstAddress = 4

// Allocator hands out DNP3 addresses per gateway.
//
// The answer is always derived from the store, so two callers only get
// distinct addresses if the first persists its plant before the second
// asks. Hold LockGateway across allocation and insert to get that.
type Allocator struct {
	store AddressStore
	locks keylock.Map
}

// NewAllocator creates an allocator reading current addresses from store.
func NewAllocator(store AddressStore) *Allocator {
	return &Allocator{store: store}
}

// LockGateway serialises allocation on gatewayID until the returned func is
// called. Returns ErrLookupFailed if ctx ends first.
func (a *Allocator) LockGateway(ctx context.Context, gatewayID string) (unlock func(), err error) {
	unlock, err = a.locks.LockContext(ctx, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	return unlock, nil
}

// AllocateAddress returns the next free address on gatewayID: FirstAddress
// when the gateway is empty, otherwise one above the highest address in use.
// Returns ErrLookupFailed if the current addresses cannot be read.
func (a *Allocator) AllocateAddress(ctx context.Context, gatewayID string) (int, error) {
	unlock, err := a.LockGateway(ctx, gatewayID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return a.nextAddress(ctx, gatewayID)
}

// nextAddress computes max+1. The caller holds the gateway lock.
func (a *Allocator) nextAddress(ctx context.Context, gatewayID string) (int, error) {
	highest, found, err := a.store.MaxAddress(ctx, gatewayID)
	if err != nil {
		return 0, fmt.Errorf("%w: gateway %s: %w", ErrLookupFailed, gatewayID, err)
	}

	next := FirstAddress
	if found {
		next = highest + 1
	}
	if next > MaxDNP3Address {
		return 0, fmt.Errorf("%w: gateway %s has no addresses left", ErrAddressConflict, gatewayID)
	}
	return next, nil
}
