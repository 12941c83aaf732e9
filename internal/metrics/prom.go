package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink exposes floor occupancy and driver charges as Prometheus
// collectors, scraped through /metrics.
type PromSink struct {
	spots          *prometheus.GaugeVec
	allocations    *prometheus.CounterVec
	releases       prometheus.Counter
	largestFreeRun prometheus.Gauge
	charges        prometheus.Counter
}

// NewPromSink registers the collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers on reg. Collectors that are already
// registered are reused, so several floors may share one registry.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	spots := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "parking_floor_spots",
		Help: "Number of spots on the floor by state",
	}, []string{"state"})
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parking_floor_allocations_total",
		Help: "Park attempts by vehicle size class and outcome",
	}, []string{"size", "outcome"})
	releases := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_floor_releases_total",
		Help: "Runs released back to the floor",
	})
	largestFreeRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parking_floor_largest_free_run",
		Help: "Length of the longest run of free spots",
	})
	charges := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parking_driver_charges_total",
		Help: "Total amount charged to drivers in minor currency units",
	})

	var err error
	if spots, err = register(reg, spots); err != nil {
		return nil, err
	}
	if allocations, err = register(reg, allocations); err != nil {
		return nil, err
	}
	if releases, err = register(reg, releases); err != nil {
		return nil, err
	}
	if largestFreeRun, err = register(reg, largestFreeRun); err != nil {
		return nil, err
	}
	if charges, err = register(reg, charges); err != nil {
		return nil, err
	}

	return &PromSink{
		spots:          spots,
		allocations:    allocations,
		releases:       releases,
		largestFreeRun: largestFreeRun,
		charges:        charges,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordOccupancy sets the spot gauges from the current floor state.
func (s *PromSink) RecordOccupancy(capacity, occupied, largestFreeRun int) {
	s.spots.WithLabelValues("occupied").Set(float64(occupied))
	s.spots.WithLabelValues("free").Set(float64(capacity - occupied))
	s.largestFreeRun.Set(float64(largestFreeRun))
}

func (s *PromSink) RecordAllocation(size, outcome string) {
	s.allocations.WithLabelValues(size, outcome).Inc()
}

func (s *PromSink) RecordRelease() {
	s.releases.Inc()
}

func (s *PromSink) RecordCharge(amount int64) {
	if amount > 0 {
		s.charges.Add(float64(amount))
	}
}
