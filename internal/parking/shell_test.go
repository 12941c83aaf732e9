package parking

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runShell(t *testing.T, input string) []string {
	t.Helper()
	tt := newTestTelemetry(t)

	var out bytes.Buffer
	shell := NewShell(strings.NewReader(input), &out, tt.provider, newTestPromSink(t), nil, 0)
	shell.Run(context.Background())

	return strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
}

func TestShellSession(t *testing.T) {
	input := `create_parking_floor 5 100
register_driver alice compact
register_driver bob large
register_driver sam oversized
park alice
park bob
spots
status
leave alice
spots
park sam
spots_for_driver bob
spots_for_driver alice
charge bob 40
balance alice
balance nobody
`
	lines := runShell(t, input)

	expected := []string{
		"Created a parking floor with 5 spots",
		"", // registration lines contain generated vehicle ids
		"",
		"",
		"Allocated spots: 0-0",
		"Allocated spots: 1-2",
		"###..",
		"Spots\tDriver\tSize",
		"0-0\talice\tcompact",
		"1-2\tbob\tlarge",
		"Spots 0-0 are free, charged 100",
		".##..",
		"Sorry, no contiguous run of free spots is long enough",
		"1-2",
		"Not found",
		"Balance due for bob: 40",
		"Balance due for alice: 100",
		"Driver not found",
	}

	if assert.Len(t, lines, len(expected)) {
		for i, want := range expected {
			if want == "" {
				assert.True(t, strings.HasPrefix(lines[i], "Registered driver "), lines[i])
				continue
			}
			assert.Equal(t, want, lines[i], "line %d", i)
		}
	}
}

func TestShellRequiresFloor(t *testing.T) {
	lines := runShell(t, "park alice\nstatus\nspots\n")

	assert.Equal(t, []string{
		"Parking floor not created",
		"Parking floor not created",
		"Parking floor not created",
	}, lines)
}

func TestShellInputErrors(t *testing.T) {
	input := `create_parking_floor zero
create_parking_floor 3 -1
create_parking_floor 3
status
register_driver alice bus
register_driver alice
park
leave alice
charge alice ten
fly
`
	lines := runShell(t, input)

	assert.Equal(t, []string{
		"Invalid spot count",
		"Invalid fee per spot",
		"Created a parking floor with 3 spots",
		"Parking floor is empty",
		"Invalid size class",
		"Usage: register_driver <driver_id> <compact|large|oversized>",
		"Usage: park <driver_id>",
		"Driver not found",
		"Invalid amount",
		"Unknown command: fly",
	}, lines)
}

func TestShellLeaveUnparkedVehicle(t *testing.T) {
	lines := runShell(t, "create_parking_floor 2\nregister_driver alice compact\nleave alice\n")

	assert.Equal(t, "Vehicle is not parked", lines[len(lines)-1])
}

func TestShellStopsOnCancelledContext(t *testing.T) {
	tt := newTestTelemetry(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	NewShell(strings.NewReader("create_parking_floor 2\n"), &out, tt.provider, nil, nil, 0).Run(ctx)

	assert.Empty(t, out.String())
}

func TestShellRejectsOversizedFloor(t *testing.T) {
	lines := runShell(t, "create_parking_floor 2000000\n")

	assert.Equal(t, []string{"Invalid spot count"}, lines)
}

func TestShellSharesDeskHolder(t *testing.T) {
	tt := newTestTelemetry(t)
	holder := NewDeskHolder(nil)

	var out bytes.Buffer
	NewShell(strings.NewReader("create_parking_floor 4\nregister_driver alice large\npark alice\n"), &out, tt.provider, nil, holder, 0).
		Run(context.Background())

	desk := holder.Current()
	require.NotNil(t, desk)
	run, err := desk.Locate(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, Span{Start: 0, End: 1}, run)

	// a floor created elsewhere is picked up by the next command
	replacement := newTestDesk(t, 3, 0)
	holder.Replace(replacement)
	out.Reset()
	NewShell(strings.NewReader("spots\n"), &out, tt.provider, nil, holder, 0).Run(context.Background())
	assert.Equal(t, "...\n", out.String())
}
