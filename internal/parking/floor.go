package parking

import (
	"fmt"
	"sort"
	"sync"
)

// MaxSpots bounds the size of a single floor.
const MaxSpots = 1 << 20

// Floor is a fixed-length row of spots handed out to vehicles as contiguous
// runs. All methods are safe for concurrent use; park and remove are
// serialized by a single per-floor lock.
type Floor struct {
	mu       sync.Mutex
	spots    []SpotState
	vehicles map[string]Assignment
}

func NewFloor(spotCount int) (*Floor, error) {
	if spotCount <= 0 {
		return nil, fmt.Errorf("%w: spot count %d must be positive", ErrInvalidConstruction, spotCount)
	}
	if spotCount > MaxSpots {
		return nil, fmt.Errorf("%w: spot count %d exceeds %d", ErrInvalidConstruction, spotCount, MaxSpots)
	}

	return &Floor{
		spots:    make([]SpotState, spotCount),
		vehicles: make(map[string]Assignment),
	}, nil
}

// Park reserves the first run of free spots, scanning left to right, whose
// length reaches the vehicle's size.
func (f *Floor) Park(vehicle *Vehicle) (Span, error) {
	if vehicle == nil {
		return Span{}, fmt.Errorf("%w: vehicle is nil", ErrInvalidConstruction)
	}
	if !vehicle.Size().Valid() {
		return Span{}, fmt.Errorf("%w: unknown size class %d", ErrInvalidConstruction, int(vehicle.Size()))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.vehicles[vehicle.ID()]; ok {
		return Span{}, fmt.Errorf("%w: %s", ErrAlreadyParked, vehicle.ID())
	}

	size := vehicle.Size().Spots()
	l := 0
	for r := 0; r < len(f.spots); r++ {
		if f.spots[r] == Occupied {
			l = r + 1
			continue
		}
		if r-l+1 == size {
			span := Span{Start: l, End: r}
			f.fill(span, Occupied)
			f.vehicles[vehicle.ID()] = Assignment{Vehicle: *vehicle, Span: span}
			return span, nil
		}
	}

	return Span{}, fmt.Errorf("%w: need %d spots for %s", ErrAllocationFailed, size, vehicle.ID())
}

// Remove frees the run held by the vehicle. Removing a vehicle that is not
// parked is an error, not a no-op.
func (f *Floor) Remove(vehicleID string) (Span, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assignment, ok := f.vehicles[vehicleID]
	if !ok {
		return Span{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}

	f.fill(assignment.Span, Free)
	delete(f.vehicles, vehicleID)
	return assignment.Span, nil
}

// Spots returns a copy of the spot states.
func (f *Floor) Spots() []SpotState {
	f.mu.Lock()
	defer f.mu.Unlock()

	spots := make([]SpotState, len(f.spots))
	copy(spots, f.spots)
	return spots
}

func (f *Floor) VehicleSpots(vehicleID string) (Span, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	assignment, ok := f.vehicles[vehicleID]
	if !ok {
		return Span{}, fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	return assignment.Span, nil
}

func (f *Floor) Capacity() int {
	return len(f.spots)
}

func (f *Floor) OccupiedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, state := range f.spots {
		if state == Occupied {
			count++
		}
	}
	return count
}

// FreeRuns returns the maximal runs of free spots from left to right.
func (f *Floor) FreeRuns() []Span {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.freeRuns()
}

func (f *Floor) LargestFreeRun() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	largest := 0
	for _, run := range f.freeRuns() {
		if run.Len() > largest {
			largest = run.Len()
		}
	}
	return largest
}

// Snapshot is a consistent view of the floor taken under one lock.
type Snapshot struct {
	Spots          []SpotState
	Occupied       int
	FreeRuns       []Span
	LargestFreeRun int
	Assignments    []Assignment
}

func (s Snapshot) Capacity() int {
	return len(s.Spots)
}

func (f *Floor) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		Spots:       make([]SpotState, len(f.spots)),
		FreeRuns:    f.freeRuns(),
		Assignments: f.assignments(),
	}
	copy(snap.Spots, f.spots)
	for _, state := range f.spots {
		if state == Occupied {
			snap.Occupied++
		}
	}
	for _, run := range snap.FreeRuns {
		if run.Len() > snap.LargestFreeRun {
			snap.LargestFreeRun = run.Len()
		}
	}
	return snap
}

// Assignments returns the parked vehicles ordered by the start of their span.
func (f *Floor) Assignments() []Assignment {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.assignments()
}

func (f *Floor) assignments() []Assignment {
	assignments := make([]Assignment, 0, len(f.vehicles))
	for _, a := range f.vehicles {
		assignments = append(assignments, a)
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].Span.Start < assignments[j].Span.Start
	})

	return assignments
}

func (f *Floor) freeRuns() []Span {
	var runs []Span
	start := -1
	for i, state := range f.spots {
		switch {
		case state == Free && start < 0:
			start = i
		case state == Occupied && start >= 0:
			runs = append(runs, Span{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Span{Start: start, End: len(f.spots) - 1})
	}
	return runs
}

func (f *Floor) fill(span Span, state SpotState) {
	for i := span.Start; i <= span.End; i++ {
		f.spots[i] = state
	}
}
