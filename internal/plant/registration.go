package plant

import (
	"context"
	"errors"
	"fmt"
)

// maxAllocationAttempts bounds retries when a writer outside this process
// takes an allocated address before our insert lands.
const maxAllocationAttempts = 3

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Registration creates plants, assigning DNP3 addresses when none is given.
type Registration struct {
	allocator *Allocator
	store     PlantCreator
	logger    Logger
}

// NewRegistration creates a Registration.
func NewRegistration(allocator *Allocator, store PlantCreator) *Registration {
	return &Registration{
		allocator: allocator,
		store:     store,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger.
func (r *Registration) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Register validates and stores p. With a zero DNP3Address an address is
// allocated; an explicit address is stored as given and fails with
// ErrAddressConflict if taken. On success p.DNP3Address holds the stored
// address.
//
// The gateway stays locked from allocation until the insert returns, so a
// failed insert leaves no gap and concurrent registrations see each other.
func (r *Registration) Register(ctx context.Context, p *Plant) error {
	if err := ValidatePlant(p); err != nil {
		return err
	}

	unlock, err := r.allocator.LockGateway(ctx, p.GatewayID)
	if err != nil {
		return err
	}
	defer unlock()

	if p.DNP3Address != 0 {
		if err := r.store.CreatePlant(ctx, p); err != nil {
			return err
		}
		r.logger.Info("plant registered", "plant_no", p.PlantNo, "gateway_id", p.GatewayID,
			"dnp3_address", p.DNP3Address, "allocated", false)
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		addr, err := r.allocator.nextAddress(ctx, p.GatewayID)
		if err != nil {
			return err
		}

		p.DNP3Address = addr
		err = r.store.CreatePlant(ctx, p)
		if err == nil {
			r.logger.Info("plant registered", "plant_no", p.PlantNo, "gateway_id", p.GatewayID,
				"dnp3_address", addr, "allocated", true)
			return nil
		}

		p.DNP3Address = 0
		if !errors.Is(err, ErrAddressConflict) {
			return err
		}
		r.logger.Warn("allocated address taken, retrying",
			"gateway_id", p.GatewayID, "dnp3_address", addr, "attempt", attempt)
		lastErr = err
	}

	return fmt.Errorf("registering %s after %d attempts: %w", p.PlantNo, maxAllocationAttempts, lastErr)
}
