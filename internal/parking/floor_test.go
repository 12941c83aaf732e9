package parking

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

func mustVehicle(t *testing.T, id string, size SizeClass) *Vehicle {
	t.Helper()
	v, err := NewVehicle(id, size)
	if err != nil {
		t.Fatalf("NewVehicle(%s, %d): %v", id, size, err)
	}
	return v
}

func mustFloor(t *testing.T, spots int) *Floor {
	t.Helper()
	f, err := NewFloor(spots)
	if err != nil {
		t.Fatalf("NewFloor(%d): %v", spots, err)
	}
	return f
}

// checkInvariant verifies occupied spots are exactly the union of the
// recorded runs, runs are disjoint and each run matches its vehicle's size.
func checkInvariant(t *testing.T, f *Floor) {
	t.Helper()

	spots := f.Spots()
	covered := make([]bool, len(spots))
	for _, a := range f.Assignments() {
		if a.Span.Len() != a.Vehicle.Size().Spots() {
			t.Errorf("vehicle %s holds %s, expected %d spots", a.Vehicle.ID(), a.Span, a.Vehicle.Size().Spots())
		}
		for i := a.Span.Start; i <= a.Span.End; i++ {
			if covered[i] {
				t.Errorf("spot %d covered by more than one run", i)
			}
			covered[i] = true
		}
	}
	for i, state := range spots {
		if (state == Occupied) != covered[i] {
			t.Errorf("spot %d is %s but covered=%v", i, state, covered[i])
		}
	}
}

func TestNewFloor(t *testing.T) {
	f := mustFloor(t, 6)

	if f.Capacity() != 6 {
		t.Errorf("Expected capacity 6, got %d", f.Capacity())
	}
	for i, state := range f.Spots() {
		if state != Free {
			t.Errorf("Expected spot %d to be free", i)
		}
	}
	if f.OccupiedCount() != 0 {
		t.Errorf("Expected no occupied spots, got %d", f.OccupiedCount())
	}
}

func TestNewFloorRejectsNonPositiveSpotCount(t *testing.T) {
	for _, n := range []int{0, -3} {
		if _, err := NewFloor(n); !errors.Is(err, ErrInvalidConstruction) {
			t.Errorf("NewFloor(%d): expected ErrInvalidConstruction, got %v", n, err)
		}
	}
}

func TestFloorScenarioFiveSpots(t *testing.T) {
	f := mustFloor(t, 5)
	compact := mustVehicle(t, "car", Compact)
	large := mustVehicle(t, "limo", Large)
	oversized := mustVehicle(t, "semi", Oversized)

	span, err := f.Park(compact)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 0, End: 0}) {
		t.Errorf("Expected [0,0], got %s", span)
	}
	checkInvariant(t, f)

	span, err = f.Park(large)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 1, End: 2}) {
		t.Errorf("Expected [1,2], got %s", span)
	}
	checkInvariant(t, f)

	if _, err := f.Remove(compact.ID()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	checkInvariant(t, f)

	expected := []SpotState{Free, Occupied, Occupied, Free, Free}
	for i, state := range f.Spots() {
		if state != expected[i] {
			t.Errorf("Expected spot %d to be %s, got %s", i, expected[i], state)
		}
	}

	runs := f.FreeRuns()
	if len(runs) != 2 || runs[0] != (Span{0, 0}) || runs[1] != (Span{3, 4}) {
		t.Errorf("Expected free runs [0,0] [3,4], got %v", runs)
	}

	if _, err := f.Park(oversized); !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("Expected ErrAllocationFailed, got %v", err)
	}
	checkInvariant(t, f)

	if _, err := f.VehicleSpots(oversized.ID()); !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("Expected failed park to leave no mapping, got %v", err)
	}
}

func TestFloorScenarioFullFloor(t *testing.T) {
	f := mustFloor(t, 3)

	span, err := f.Park(mustVehicle(t, "semi", Oversized))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 0, End: 2}) {
		t.Errorf("Expected [0,2], got %s", span)
	}

	for _, size := range []SizeClass{Compact, Large, Oversized} {
		_, err := f.Park(mustVehicle(t, "other-"+size.String(), size))
		if !errors.Is(err, ErrAllocationFailed) {
			t.Errorf("Expected %s park to fail on a full floor, got %v", size, err)
		}
	}
	checkInvariant(t, f)
}

func TestFloorParkPicksLeftmostRun(t *testing.T) {
	f := mustFloor(t, 8)
	// occupy spots 1 and 4: free runs are [0,0] [2,3] [5,7]
	blockers := []*Vehicle{
		mustVehicle(t, "a", Compact),
		mustVehicle(t, "b", Compact),
		mustVehicle(t, "c", Compact),
		mustVehicle(t, "d", Compact),
		mustVehicle(t, "e", Compact),
	}
	for _, v := range blockers {
		if _, err := f.Park(v); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	for _, id := range []string{"a", "c", "d"} {
		if _, err := f.Remove(id); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	span, err := f.Park(mustVehicle(t, "limo", Large))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 2, End: 3}) {
		t.Errorf("Expected first-fit run [2,3], got %s", span)
	}

	span, err = f.Park(mustVehicle(t, "semi", Oversized))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 5, End: 7}) {
		t.Errorf("Expected [5,7], got %s", span)
	}

	span, err = f.Park(mustVehicle(t, "car", Compact))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 0, End: 0}) {
		t.Errorf("Expected [0,0], got %s", span)
	}
	checkInvariant(t, f)
}

func TestFloorParkTruncatesLongerRun(t *testing.T) {
	f := mustFloor(t, 6)

	span, err := f.Park(mustVehicle(t, "limo", Large))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != (Span{Start: 0, End: 1}) {
		t.Errorf("Expected run to start at the left edge, got %s", span)
	}
	if f.LargestFreeRun() != 4 {
		t.Errorf("Expected largest free run 4, got %d", f.LargestFreeRun())
	}
}

func TestFloorRemoveThenReuse(t *testing.T) {
	f := mustFloor(t, 4)
	first := mustVehicle(t, "first", Large)
	second := mustVehicle(t, "second", Large)
	third := mustVehicle(t, "third", Large)

	f.Park(first)
	f.Park(second)

	freed, err := f.Remove(first.ID())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	span, err := f.Park(third)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if span != freed {
		t.Errorf("Expected to reuse %s, got %s", freed, span)
	}
	checkInvariant(t, f)
}

func TestFloorRejectsDoublePark(t *testing.T) {
	f := mustFloor(t, 5)
	v := mustVehicle(t, "car", Compact)

	f.Park(v)
	if _, err := f.Park(v); !errors.Is(err, ErrAlreadyParked) {
		t.Errorf("Expected ErrAlreadyParked, got %v", err)
	}
	if f.OccupiedCount() != 1 {
		t.Errorf("Expected 1 occupied spot, got %d", f.OccupiedCount())
	}
}

func TestFloorRejectsInvalidVehicle(t *testing.T) {
	f := mustFloor(t, 5)

	if _, err := f.Park(nil); !errors.Is(err, ErrInvalidConstruction) {
		t.Errorf("Expected ErrInvalidConstruction for nil vehicle, got %v", err)
	}
	if _, err := f.Park(&Vehicle{id: "ghost", size: 7}); !errors.Is(err, ErrInvalidConstruction) {
		t.Errorf("Expected ErrInvalidConstruction for bad size, got %v", err)
	}
}

func TestFloorRemoveUnknownVehicle(t *testing.T) {
	f := mustFloor(t, 3)

	if _, err := f.Remove("nobody"); !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("Expected ErrVehicleNotFound, got %v", err)
	}

	v := mustVehicle(t, "car", Compact)
	f.Park(v)
	f.Remove(v.ID())
	if _, err := f.Remove(v.ID()); !errors.Is(err, ErrVehicleNotFound) {
		t.Errorf("Expected second remove to fail, got %v", err)
	}
}

func TestFloorSpotsIsACopy(t *testing.T) {
	f := mustFloor(t, 2)

	spots := f.Spots()
	spots[0] = Occupied

	if f.Spots()[0] != Free {
		t.Error("Expected mutation of the returned slice not to reach the floor")
	}
}

func TestFloorAssignmentsOrdered(t *testing.T) {
	f := mustFloor(t, 6)
	f.Park(mustVehicle(t, "x", Compact))
	f.Park(mustVehicle(t, "y", Large))
	f.Park(mustVehicle(t, "z", Compact))
	f.Remove("x")
	f.Park(mustVehicle(t, "w", Compact))

	expected := []string{"w", "y", "z"}
	assignments := f.Assignments()
	if len(assignments) != len(expected) {
		t.Fatalf("Expected %d assignments, got %d", len(expected), len(assignments))
	}
	for i, a := range assignments {
		if a.Vehicle.ID() != expected[i] {
			t.Errorf("Expected %s at position %d, got %s", expected[i], i, a.Vehicle.ID())
		}
	}
}

// firstFit is the start of the leftmost free run holding size spots, or -1.
func firstFit(runs []Span, size int) int {
	for _, run := range runs {
		if run.Len() >= size {
			return run.Start
		}
	}
	return -1
}

func TestFloorRandomOperationsKeepInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := mustFloor(t, 17)
	parked := map[string]bool{}

	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("v%d", rng.Intn(12))
		if parked[id] {
			if _, err := f.Remove(id); err != nil {
				t.Fatalf("step %d: remove %s: %v", i, id, err)
			}
			delete(parked, id)
		} else {
			size := SizeClass(rng.Intn(3) + 1)
			want := firstFit(f.FreeRuns(), size.Spots())
			run, err := f.Park(&Vehicle{id: id, size: size})
			switch {
			case err == nil:
				if want < 0 {
					t.Fatalf("step %d: park of size %d succeeded with no free run long enough", i, size)
				}
				if run.Start != want || run.Len() != size.Spots() {
					t.Fatalf("step %d: park of size %d took %s, expected start %d", i, size, run, want)
				}
				parked[id] = true
			case errors.Is(err, ErrAllocationFailed):
				if want >= 0 {
					t.Fatalf("step %d: park of size %d failed with a free run at %d", i, size, want)
				}
			default:
				t.Fatalf("step %d: park %s: %v", i, id, err)
			}
		}
		checkInvariant(t, f)
	}
}

func TestFloorConcurrentParkRemove(t *testing.T) {
	f := mustFloor(t, 30)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v := &Vehicle{id: fmt.Sprintf("w%d-%d", w, i), size: SizeClass(i%3 + 1)}
				if _, err := f.Park(v); err == nil {
					f.Remove(v.ID())
				}
			}
		}(w)
	}
	wg.Wait()

	checkInvariant(t, f)
	if f.OccupiedCount() != 0 {
		t.Errorf("Expected empty floor, got %d occupied", f.OccupiedCount())
	}
}

func TestNewFloorRejectsOversizedFloor(t *testing.T) {
	if _, err := NewFloor(MaxSpots + 1); !errors.Is(err, ErrInvalidConstruction) {
		t.Errorf("Expected ErrInvalidConstruction above %d spots, got %v", MaxSpots, err)
	}
	if _, err := NewFloor(1 << 50); !errors.Is(err, ErrInvalidConstruction) {
		t.Errorf("Expected ErrInvalidConstruction for 1<<50 spots, got %v", err)
	}
}

func TestFloorSnapshot(t *testing.T) {
	f := mustFloor(t, 7)
	f.Park(mustVehicle(t, "a", Large))
	f.Park(mustVehicle(t, "b", Compact))
	f.Park(mustVehicle(t, "c", Compact))
	f.Remove("b")

	snap := f.Snapshot()
	if snap.Capacity() != 7 {
		t.Errorf("Expected capacity 7, got %d", snap.Capacity())
	}
	if snap.Occupied != 3 {
		t.Errorf("Expected 3 occupied spots, got %d", snap.Occupied)
	}
	wantRuns := []Span{{Start: 2, End: 2}, {Start: 4, End: 6}}
	if len(snap.FreeRuns) != len(wantRuns) {
		t.Fatalf("Expected free runs %v, got %v", wantRuns, snap.FreeRuns)
	}
	for i := range wantRuns {
		if snap.FreeRuns[i] != wantRuns[i] {
			t.Errorf("free run %d: expected %s, got %s", i, wantRuns[i], snap.FreeRuns[i])
		}
	}
	if snap.LargestFreeRun != 3 {
		t.Errorf("Expected largest free run 3, got %d", snap.LargestFreeRun)
	}
	if len(snap.Assignments) != 2 || snap.Assignments[0].Vehicle.ID() != "a" || snap.Assignments[1].Vehicle.ID() != "c" {
		t.Errorf("Unexpected assignments %v", snap.Assignments)
	}

	snap.Spots[0] = Free
	if f.Spots()[0] != Occupied {
		t.Error("Expected mutation of the snapshot not to reach the floor")
	}
}

func TestFloorRemoveFreesParkedFootprint(t *testing.T) {
	f := mustFloor(t, 4)
	v := mustVehicle(t, "truck", Oversized)

	if _, err := f.Park(v); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	freed, err := f.Remove(v.ID())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if freed.Len() != v.Size().Spots() {
		t.Errorf("Expected %d spots freed, got %s", v.Size().Spots(), freed)
	}
	if f.OccupiedCount() != 0 {
		t.Errorf("Expected empty floor, got %d occupied", f.OccupiedCount())
	}
}
