package parking

import "errors"

var (
	// ErrAllocationFailed means no free run is long enough for the vehicle.
	// Callers are expected to handle it: wait, reject or redirect.
	ErrAllocationFailed = errors.New("no contiguous run of free spots")

	ErrVehicleNotFound     = errors.New("vehicle not found")
	ErrAlreadyParked       = errors.New("vehicle already parked")
	ErrInvalidConstruction = errors.New("invalid construction")
	ErrNegativeCharge      = errors.New("charge amount must not be negative")
	ErrBalanceOverflow     = errors.New("balance due would overflow")
	ErrDriverNotFound      = errors.New("driver not found")
	ErrDriverExists        = errors.New("driver already registered")
	ErrFloorNotCreated     = errors.New("parking floor not created")
)
