package parking

import (
	"fmt"
	"math"
)

// Driver owns one vehicle and accumulates what they owe in minor currency
// units. The balance only grows; settling it happens elsewhere.
type Driver struct {
	id         string
	vehicle    *Vehicle
	balanceDue int64
}

func NewDriver(id string, vehicle *Vehicle) (*Driver, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrInvalidConstruction)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: driver %s has no vehicle", ErrInvalidConstruction, id)
	}

	return &Driver{
		id:      id,
		vehicle: vehicle,
	}, nil
}

func (d *Driver) ID() string {
	return d.id
}

func (d *Driver) Vehicle() *Vehicle {
	return d.vehicle
}

func (d *Driver) BalanceDue() int64 {
	return d.balanceDue
}

// Charge adds amount to the balance due. A rejected charge leaves the
// balance untouched.
func (d *Driver) Charge(amount int64) error {
	if err := d.canCharge(amount); err != nil {
		return err
	}
	d.balanceDue += amount
	return nil
}

func (d *Driver) canCharge(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCharge, amount)
	}
	if amount > math.MaxInt64-d.balanceDue {
		return fmt.Errorf("%w: %d + %d", ErrBalanceOverflow, d.balanceDue, amount)
	}
	return nil
}

// spotFee is feePerSpot for each of spots, failing instead of wrapping.
func spotFee(feePerSpot int64, spots int) (int64, error) {
	if feePerSpot < 0 {
		return 0, fmt.Errorf("%w: fee per spot %d", ErrNegativeCharge, feePerSpot)
	}
	if spots > 0 && feePerSpot > math.MaxInt64/int64(spots) {
		return 0, fmt.Errorf("%w: %d spots at %d", ErrBalanceOverflow, spots, feePerSpot)
	}
	return feePerSpot * int64(spots), nil
}
