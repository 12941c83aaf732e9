package parking

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"parking-floor/internal/metrics"
)

// Shell reads one command per line and answers on out.
type Shell struct {
	desks      *DeskHolder
	desk       *Desk
	scanner    *bufio.Scanner
	out        io.Writer
	telemetry  *TelemetryProvider
	prom       *metrics.PromSink
	feePerSpot int64
}

// NewShell serves whichever desk desks holds; a nil holder starts without a
// floor. feePerSpot is used when create_parking_floor omits a fee.
func NewShell(in io.Reader, out io.Writer, telemetry *TelemetryProvider, prom *metrics.PromSink, desks *DeskHolder, feePerSpot int64) *Shell {
	if desks == nil {
		desks = NewDeskHolder(nil)
	}
	return &Shell{
		desks:      desks,
		scanner:    bufio.NewScanner(in),
		out:        out,
		telemetry:  telemetry,
		prom:       prom,
		feePerSpot: feePerSpot,
	}
}

func (s *Shell) Run(ctx context.Context) {
	tracer := s.telemetry.Tracer()
	ctx, span := tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for ctx.Err() == nil {
		if !s.scanner.Scan() {
			break
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}

		// Create a new span for each command
		cmdCtx, cmdSpan := tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))

		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
}

func (s *Shell) processCommand(ctx context.Context, input string) {
	span := trace.SpanFromContext(ctx)

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	command := parts[0]
	span.SetAttributes(attribute.String("command.name", command))

	switch command {
	case "create_parking_floor":
		s.handleCreateParkingFloor(ctx, parts)
	case "register_driver":
		s.handleRegisterDriver(ctx, parts)
	case "park":
		s.handlePark(ctx, parts)
	case "leave":
		s.handleLeave(ctx, parts)
	case "status":
		s.handleStatus(ctx)
	case "spots":
		s.handleSpots(ctx)
	case "spots_for_driver":
		s.handleSpotsForDriver(ctx, parts)
	case "charge":
		s.handleCharge(ctx, parts)
	case "balance":
		s.handleBalance(ctx, parts)
	default:
		span.AddEvent("unknown_command", trace.WithAttributes(
			attribute.String("unknown_command", command),
		))
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *Shell) handleCreateParkingFloor(ctx context.Context, parts []string) {
	_, span := s.telemetry.Tracer().Start(ctx, "shell.create_parking_floor")
	defer span.End()

	if len(parts) != 2 && len(parts) != 3 {
		span.AddEvent("invalid_arguments")
		s.println("Usage: create_parking_floor <spots> [fee_per_spot]")
		return
	}

	spots, err := strconv.Atoi(parts[1])
	if err != nil || spots <= 0 || spots > MaxSpots {
		span.RecordError(fmt.Errorf("invalid spot count: %s", parts[1]))
		s.println("Invalid spot count")
		return
	}

	fee := s.feePerSpot
	if len(parts) == 3 {
		fee, err = strconv.ParseInt(parts[2], 10, 64)
		if err != nil || fee < 0 {
			span.RecordError(fmt.Errorf("invalid fee: %s", parts[2]))
			s.println("Invalid fee per spot")
			return
		}
	}

	span.SetAttributes(attribute.Int("parking_floor.spots", spots))

	floor, err := NewInstrumentedFloor(spots, s.telemetry, s.prom)
	if err != nil {
		span.RecordError(err)
		s.printf("Error creating parking floor: %s\n", err.Error())
		return
	}
	desk, err := NewDesk(floor, fee, s.telemetry, s.prom)
	if err != nil {
		span.RecordError(err)
		s.printf("Error creating parking floor: %s\n", err.Error())
		return
	}

	s.desks.Replace(desk)
	span.AddEvent("parking_floor_created")
	s.printf("Created a parking floor with %d spots\n", spots)
}

func (s *Shell) handleRegisterDriver(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 3 {
		s.println("Usage: register_driver <driver_id> <compact|large|oversized>")
		return
	}

	size, err := ParseSizeClass(parts[2])
	if err != nil {
		s.println("Invalid size class")
		return
	}

	info, err := s.desk.RegisterDriver(ctx, parts[1], size)
	if err != nil {
		s.printf("Error: %s\n", err.Error())
		return
	}

	s.printf("Registered driver %s with %s vehicle %s\n", info.ID, info.SizeClass, info.VehicleID)
}

func (s *Shell) handlePark(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 2 {
		s.println("Usage: park <driver_id>")
		return
	}

	run, err := s.desk.CheckIn(ctx, parts[1])
	switch {
	case errors.Is(err, ErrAllocationFailed):
		s.println("Sorry, no contiguous run of free spots is long enough")
	case errors.Is(err, ErrDriverNotFound):
		s.println("Driver not found")
	case err != nil:
		s.printf("Error: %s\n", err.Error())
	default:
		s.printf("Allocated spots: %d-%d\n", run.Start, run.End)
	}
}

func (s *Shell) handleLeave(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 2 {
		s.println("Usage: leave <driver_id>")
		return
	}

	receipt, err := s.desk.CheckOut(ctx, parts[1])
	switch {
	case errors.Is(err, ErrDriverNotFound):
		s.println("Driver not found")
	case errors.Is(err, ErrVehicleNotFound):
		s.println("Vehicle is not parked")
	case err != nil:
		s.printf("Error: %s\n", err.Error())
	default:
		s.printf("Spots %d-%d are free, charged %d\n", receipt.Span.Start, receipt.Span.End, receipt.Fee)
	}
}

func (s *Shell) handleStatus(ctx context.Context) {
	_, span := s.telemetry.Tracer().Start(ctx, "shell.status_command")
	defer span.End()

	if !s.ready() {
		return
	}

	occupants := s.desk.Occupants()
	if len(occupants) == 0 {
		span.AddEvent("parking_floor_empty")
		s.println("Parking floor is empty")
		return
	}

	span.SetAttributes(attribute.Int("occupants_count", len(occupants)))

	s.println("Spots\tDriver\tSize")
	for _, o := range occupants {
		s.printf("%d-%d\t%s\t%s\n", o.Span.Start, o.Span.End, o.Driver.ID, o.Driver.SizeClass)
	}
}

func (s *Shell) handleSpots(ctx context.Context) {
	if !s.ready() {
		return
	}

	var b strings.Builder
	for _, state := range s.desk.Floor().Spots(ctx) {
		if state == Occupied {
			b.WriteByte('#')
		} else {
			b.WriteByte('.')
		}
	}
	s.println(b.String())
}

func (s *Shell) handleSpotsForDriver(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 2 {
		s.println("Usage: spots_for_driver <driver_id>")
		return
	}

	run, err := s.desk.Locate(ctx, parts[1])
	if err != nil {
		s.println("Not found")
		return
	}
	s.printf("%d-%d\n", run.Start, run.End)
}

func (s *Shell) handleCharge(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 3 {
		s.println("Usage: charge <driver_id> <amount>")
		return
	}

	amount, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		s.println("Invalid amount")
		return
	}

	info, err := s.desk.Charge(ctx, parts[1], amount)
	if err != nil {
		s.printf("Error: %s\n", err.Error())
		return
	}
	s.printf("Balance due for %s: %d\n", info.ID, info.BalanceDue)
}

func (s *Shell) handleBalance(ctx context.Context, parts []string) {
	if !s.ready() {
		return
	}
	if len(parts) != 2 {
		s.println("Usage: balance <driver_id>")
		return
	}

	info, err := s.desk.Driver(parts[1])
	if err != nil {
		s.println("Driver not found")
		return
	}
	s.printf("Balance due for %s: %d\n", info.ID, info.BalanceDue)
}

// ready pins the current desk for the command being processed.
func (s *Shell) ready() bool {
	s.desk = s.desks.Current()
	if s.desk == nil {
		s.println("Parking floor not created")
		return false
	}
	return true
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(line string) {
	fmt.Fprintln(s.out, line)
}
