package plant

import "errors"

// Domain errors for the plant package.
//
//	if errors.Is(err, plant.ErrNotFound) {
//	    // unknown plant, or gateway not visible to the token
//	}
var (
	// ErrNotFound is returned when a plant does not exist, or its gateway
	// does not exist under the presented site token. The two cases are
	// indistinguishable to callers.
	ErrNotFound = errors.New("plant: not found")

	// ErrGatewayNotFound is returned when a referenced gateway does not exist.
	ErrGatewayNotFound = errors.New("plant: gateway not found")

	// ErrPlantExists is returned when creating a plant whose number is taken.
	ErrPlantExists = errors.New("plant: already exists")

	// ErrGatewayExists is returned when creating a gateway whose ID is taken.
	ErrGatewayExists = errors.New("plant: gateway already exists")

	// ErrAddressConflict is returned when a DNP3 address is already used on
	// the gateway.
	ErrAddressConflict = errors.New("plant: dnp3 address already in use on gateway")

	// ErrLookupFailed is returned when the current addresses of a gateway
	// cannot be read, so no address is allocated.
	ErrLookupFailed = errors.New("plant: address lookup failed")

	// ErrInvalidPlant is returned when plant validation fails.
	ErrInvalidPlant = errors.New("plant: invalid")

	// ErrInvalidGateway is returned when gateway validation fails.
	ErrInvalidGateway = errors.New("plant: invalid gateway")

	// ErrInvalidCategory is returned for an unknown plant category.
	ErrInvalidCategory = errors.New("plant: invalid category")
)
