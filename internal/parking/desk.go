package parking

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"parking-floor/internal/logging"
	"parking-floor/internal/metrics"
)

// DriverInfo is a point-in-time copy of a registered driver.
type DriverInfo struct {
	ID         string    `json:"driver_id"`
	VehicleID  string    `json:"vehicle_id"`
	SizeClass  SizeClass `json:"size_class"`
	BalanceDue int64     `json:"balance_due"`
}

type Receipt struct {
	Driver DriverInfo `json:"driver"`
	Span   Span       `json:"span"`
	Fee    int64      `json:"fee"`
}

// Desk registers drivers, parks and releases their vehicles on one floor and
// charges a flat fee per occupied spot at checkout.
type Desk struct {
	mu         sync.RWMutex
	floor      *InstrumentedFloor
	drivers    map[string]*Driver
	feePerSpot int64
	telemetry  *TelemetryProvider
	prom       *metrics.PromSink
}

func NewDesk(floor *InstrumentedFloor, feePerSpot int64, telemetry *TelemetryProvider, prom *metrics.PromSink) (*Desk, error) {
	if floor == nil {
		return nil, ErrFloorNotCreated
	}
	if feePerSpot < 0 {
		return nil, fmt.Errorf("%w: fee per spot %d", ErrNegativeCharge, feePerSpot)
	}

	return &Desk{
		floor:      floor,
		drivers:    make(map[string]*Driver),
		feePerSpot: feePerSpot,
		telemetry:  telemetry,
		prom:       prom,
	}, nil
}

func (d *Desk) Floor() *InstrumentedFloor {
	return d.floor
}

func (d *Desk) FeePerSpot() int64 {
	return d.feePerSpot
}

// RegisterDriver creates a driver owning a new vehicle of the given size.
func (d *Desk) RegisterDriver(ctx context.Context, driverID string, size SizeClass) (DriverInfo, error) {
	ctx, span := d.telemetry.Tracer().Start(ctx, "desk.register_driver",
		trace.WithAttributes(
			attribute.String("driver.id", driverID),
			attribute.String("vehicle.size_class", size.String()),
		))
	defer span.End()

	vehicle, err := NewVehicle(uuid.New().String(), size)
	if err != nil {
		return DriverInfo{}, recordSpanError(span, err)
	}
	driver, err := NewDriver(driverID, vehicle)
	if err != nil {
		return DriverInfo{}, recordSpanError(span, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.drivers[driverID]; ok {
		return DriverInfo{}, recordSpanError(span, fmt.Errorf("%w: %s", ErrDriverExists, driverID))
	}
	d.drivers[driverID] = driver

	span.SetAttributes(attribute.String("vehicle.id", vehicle.ID()))
	logging.Info(ctx).Str("driver", driverID).Str("vehicle", vehicle.ID()).Msg("driver registered")

	return infoOf(driver), nil
}

func (d *Desk) Driver(driverID string) (DriverInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	driver, ok := d.drivers[driverID]
	if !ok {
		return DriverInfo{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}
	return infoOf(driver), nil
}

// Drivers returns every registered driver ordered by id.
func (d *Desk) Drivers() []DriverInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]DriverInfo, 0, len(d.drivers))
	for _, driver := range d.drivers {
		infos = append(infos, infoOf(driver))
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}

type Occupant struct {
	Driver DriverInfo `json:"driver"`
	Span   Span       `json:"span"`
}

// Occupants lists parked drivers ordered by the start of their run.
func (d *Desk) Occupants() []Occupant {
	return d.occupantsOf(d.floor.Assignments())
}

// Status is the floor snapshot together with the drivers parked on it, all
// taken from the same instant of the floor.
type Status struct {
	Snapshot
	FeePerSpot int64
	Occupants  []Occupant
}

func (d *Desk) Status(ctx context.Context) Status {
	snap := d.floor.Snapshot(ctx)
	return Status{
		Snapshot:   snap,
		FeePerSpot: d.feePerSpot,
		Occupants:  d.occupantsOf(snap.Assignments),
	}
}

func (d *Desk) occupantsOf(assignments []Assignment) []Occupant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byVehicle := make(map[string]*Driver, len(d.drivers))
	for _, driver := range d.drivers {
		byVehicle[driver.Vehicle().ID()] = driver
	}

	occupants := make([]Occupant, 0, len(assignments))
	for _, a := range assignments {
		driver, ok := byVehicle[a.Vehicle.ID()]
		if !ok {
			continue
		}
		occupants = append(occupants, Occupant{Driver: infoOf(driver), Span: a.Span})
	}
	return occupants
}

// CheckIn parks the driver's vehicle.
func (d *Desk) CheckIn(ctx context.Context, driverID string) (Span, error) {
	ctx, span := d.telemetry.Tracer().Start(ctx, "desk.check_in",
		trace.WithAttributes(attribute.String("driver.id", driverID)))
	defer span.End()

	vehicle, err := d.vehicleOf(driverID)
	if err != nil {
		return Span{}, recordSpanError(span, err)
	}

	run, err := d.floor.Park(ctx, vehicle)
	if err != nil {
		return Span{}, recordSpanError(span, err)
	}
	return run, nil
}

// CheckOut releases the driver's run and charges feePerSpot for each spot
// it covered. The fee is checked before the run is released, so a checkout
// either frees the spots and charges or does neither.
func (d *Desk) CheckOut(ctx context.Context, driverID string) (Receipt, error) {
	ctx, span := d.telemetry.Tracer().Start(ctx, "desk.check_out",
		trace.WithAttributes(attribute.String("driver.id", driverID)))
	defer span.End()

	// the desk lock is taken before the floor lock, never the reverse
	d.mu.Lock()
	defer d.mu.Unlock()

	driver, ok := d.drivers[driverID]
	if !ok {
		return Receipt{}, recordSpanError(span, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID))
	}
	vehicleID := driver.Vehicle().ID()

	if held, err := d.floor.Floor.VehicleSpots(vehicleID); err == nil {
		fee, err := spotFee(d.feePerSpot, held.Len())
		if err == nil {
			err = driver.canCharge(fee)
		}
		if err != nil {
			return Receipt{}, recordSpanError(span, err)
		}
	}

	run, err := d.floor.Remove(ctx, vehicleID)
	if err != nil {
		return Receipt{}, recordSpanError(span, err)
	}

	fee, err := spotFee(d.feePerSpot, run.Len())
	if err != nil {
		return Receipt{}, recordSpanError(span, err)
	}
	if err := driver.Charge(fee); err != nil {
		return Receipt{}, recordSpanError(span, err)
	}
	if d.prom != nil {
		d.prom.RecordCharge(fee)
	}
	info := infoOf(driver)

	span.SetAttributes(attribute.Int64("fee", fee))
	logging.Info(ctx).Str("driver", driverID).Int64("fee", fee).Int64("balance_due", info.BalanceDue).Msg("driver checked out")

	return Receipt{Driver: info, Span: run, Fee: fee}, nil
}

// Locate returns the run held by the driver's vehicle.
func (d *Desk) Locate(ctx context.Context, driverID string) (Span, error) {
	vehicle, err := d.vehicleOf(driverID)
	if err != nil {
		return Span{}, err
	}
	return d.floor.VehicleSpots(ctx, vehicle.ID())
}

func (d *Desk) Charge(ctx context.Context, driverID string, amount int64) (DriverInfo, error) {
	_, span := d.telemetry.Tracer().Start(ctx, "desk.charge",
		trace.WithAttributes(
			attribute.String("driver.id", driverID),
			attribute.Int64("amount", amount),
		))
	defer span.End()

	info, err := d.charge(driverID, amount)
	if err != nil {
		return DriverInfo{}, recordSpanError(span, err)
	}
	return info, nil
}

func (d *Desk) charge(driverID string, amount int64) (DriverInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	driver, ok := d.drivers[driverID]
	if !ok {
		return DriverInfo{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}
	if err := driver.Charge(amount); err != nil {
		return DriverInfo{}, err
	}
	if d.prom != nil {
		d.prom.RecordCharge(amount)
	}
	return infoOf(driver), nil
}

func (d *Desk) vehicleOf(driverID string) (*Vehicle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	driver, ok := d.drivers[driverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}
	return driver.Vehicle(), nil
}

func infoOf(driver *Driver) DriverInfo {
	return DriverInfo{
		ID:         driver.ID(),
		VehicleID:  driver.Vehicle().ID(),
		SizeClass:  driver.Vehicle().Size(),
		BalanceDue: driver.BalanceDue(),
	}
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// DeskHolder is the desk currently serving the floor. The shell and the HTTP
// API share one holder so a floor created through either is visible to both.
type DeskHolder struct {
	mu   sync.RWMutex
	desk *Desk
}

// NewDeskHolder starts with desk, which may be nil until a floor is created.
func NewDeskHolder(desk *Desk) *DeskHolder {
	return &DeskHolder{desk: desk}
}

func (h *DeskHolder) Current() *Desk {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.desk
}

// Replace swaps in the desk of a newly created floor.
func (h *DeskHolder) Replace(desk *Desk) {
	h.mu.Lock()
	h.desk = desk
	h.mu.Unlock()
}
