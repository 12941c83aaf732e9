package parking

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parking-floor/internal/logging"
	"parking-floor/internal/metrics"
)

type InstrumentedFloor struct {
	*Floor
	telemetry *TelemetryProvider
	prom      *metrics.PromSink

	// Metrics
	parkOperations    metric.Int64Counter
	removeOperations  metric.Int64Counter
	occupiedSpots     metric.Int64UpDownCounter
	operationDuration metric.Float64Histogram
	totalSpots        metric.Int64UpDownCounter
}

// NewInstrumentedFloor builds a floor of spotCount spots. prom may be nil.
func NewInstrumentedFloor(spotCount int, telemetry *TelemetryProvider, prom *metrics.PromSink) (*InstrumentedFloor, error) {
	floor, err := NewFloor(spotCount)
	if err != nil {
		return nil, err
	}

	meter := telemetry.Meter()

	parkOperations, err := meter.Int64Counter("park_operations_total",
		metric.WithDescription("Total number of park operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	removeOperations, err := meter.Int64Counter("remove_operations_total",
		metric.WithDescription("Total number of remove operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupiedSpots, err := meter.Int64UpDownCounter("parking_floor_occupied_spots",
		metric.WithDescription("Current number of occupied spots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of parking floor operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	totalSpots, err := meter.Int64UpDownCounter("parking_floor_total_spots",
		metric.WithDescription("Total number of spots on the floor"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	f := &InstrumentedFloor{
		Floor:             floor,
		telemetry:         telemetry,
		prom:              prom,
		parkOperations:    parkOperations,
		removeOperations:  removeOperations,
		occupiedSpots:     occupiedSpots,
		operationDuration: operationDuration,
		totalSpots:        totalSpots,
	}

	totalSpots.Add(context.Background(), int64(spotCount))
	f.recordOccupancy()

	return f, nil
}

func (f *InstrumentedFloor) Park(ctx context.Context, vehicle *Vehicle) (Span, error) {
	attrs := []attribute.KeyValue{}
	if vehicle != nil {
		attrs = append(attrs,
			attribute.String("vehicle.id", vehicle.ID()),
			attribute.String("vehicle.size_class", vehicle.Size().String()),
		)
	}

	ctx, span := f.telemetry.Tracer().Start(ctx, "parking_floor.park", trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()

	span.AddEvent("scanning_for_free_run")

	run, err := f.Floor.Park(vehicle)

	duration := time.Since(start).Seconds()

	labels := []attribute.KeyValue{attribute.String("operation", "park")}
	size := "unknown"
	if vehicle != nil {
		size = vehicle.Size().String()
		labels = append(labels, attribute.String("vehicle_size_class", size))
	}

	if err != nil {
		outcome := failureStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", outcome))
		logging.Warn(ctx).Err(err).Str("size_class", size).Msg("park rejected")
		if f.prom != nil {
			f.prom.RecordAllocation(size, outcome)
		}
	} else {
		labels = append(labels, attribute.String("status", "success"))
		span.SetAttributes(
			attribute.Int("allocated_run.start", run.Start),
			attribute.Int("allocated_run.end", run.End),
		)
		span.AddEvent("run_allocated", trace.WithAttributes(
			attribute.Int("run.start", run.Start),
			attribute.Int("run.end", run.End),
		))
		f.occupiedSpots.Add(ctx, int64(run.Len()))
		logging.Info(ctx).Str("vehicle", vehicle.ID()).Stringer("run", run).Msg("vehicle parked")
		if f.prom != nil {
			f.prom.RecordAllocation(size, "success")
		}
	}

	f.parkOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	f.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))
	f.recordOccupancy()

	return run, err
}

func (f *InstrumentedFloor) Remove(ctx context.Context, vehicleID string) (Span, error) {
	ctx, span := f.telemetry.Tracer().Start(ctx, "parking_floor.remove",
		trace.WithAttributes(
			attribute.String("vehicle.id", vehicleID),
		))
	defer span.End()

	start := time.Now()

	span.AddEvent("releasing_run")

	run, err := f.Floor.Remove(vehicleID)

	duration := time.Since(start).Seconds()

	labels := []attribute.KeyValue{attribute.String("operation", "remove")}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		labels = append(labels, attribute.String("status", failureStatus(err)))
		logging.Warn(ctx).Err(err).Msg("remove rejected")
	} else {
		labels = append(labels, attribute.String("status", "success"))
		span.AddEvent("run_released", trace.WithAttributes(
			attribute.Int("run.start", run.Start),
			attribute.Int("run.end", run.End),
		))
		f.occupiedSpots.Add(ctx, -int64(run.Len()))
		logging.Info(ctx).Str("vehicle", vehicleID).Stringer("run", run).Msg("vehicle removed")
		if f.prom != nil {
			f.prom.RecordRelease()
		}
	}

	f.removeOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	f.operationDuration.Record(ctx, duration, metric.WithAttributes(labels...))
	f.recordOccupancy()

	return run, err
}

func (f *InstrumentedFloor) Spots(ctx context.Context) []SpotState {
	ctx, span := f.telemetry.Tracer().Start(ctx, "parking_floor.spots")
	defer span.End()

	start := time.Now()

	spots := f.Floor.Spots()

	span.SetAttributes(attribute.Int("total_spots", len(spots)))

	f.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "spots"),
		attribute.String("status", "success"),
	))

	return spots
}

func (f *InstrumentedFloor) VehicleSpots(ctx context.Context, vehicleID string) (Span, error) {
	ctx, span := f.telemetry.Tracer().Start(ctx, "parking_floor.vehicle_spots",
		trace.WithAttributes(
			attribute.String("vehicle.id", vehicleID),
		))
	defer span.End()

	start := time.Now()

	run, err := f.Floor.VehicleSpots(vehicleID)

	labels := []attribute.KeyValue{attribute.String("operation", "vehicle_spots")}

	if err != nil {
		span.AddEvent("vehicle_not_found")
		labels = append(labels, attribute.String("status", "not_found"))
	} else {
		span.AddEvent("vehicle_found", trace.WithAttributes(
			attribute.Int("run.start", run.Start),
			attribute.Int("run.end", run.End),
		))
		labels = append(labels, attribute.String("status", "found"))
	}

	f.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return run, err
}

// Snapshot reads the floor once, refreshes the occupancy gauges from that
// reading and returns it.
func (f *InstrumentedFloor) Snapshot(ctx context.Context) Snapshot {
	_, span := f.telemetry.Tracer().Start(ctx, "parking_floor.snapshot")
	defer span.End()

	snap := f.Floor.Snapshot()
	span.SetAttributes(
		attribute.Int("total_spots", snap.Capacity()),
		attribute.Int("occupied_spots", snap.Occupied),
		attribute.Int("largest_free_run", snap.LargestFreeRun),
	)
	f.recordSnapshot(snap)
	return snap
}

func (f *InstrumentedFloor) recordOccupancy() {
	if f.prom == nil {
		return
	}
	f.recordSnapshot(f.Floor.Snapshot())
}

func (f *InstrumentedFloor) recordSnapshot(snap Snapshot) {
	if f.prom == nil {
		return
	}
	f.prom.RecordOccupancy(snap.Capacity(), snap.Occupied, snap.LargestFreeRun)
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, ErrAllocationFailed):
		return "no_free_run"
	case errors.Is(err, ErrAlreadyParked):
		return "already_parked"
	case errors.Is(err, ErrVehicleNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
