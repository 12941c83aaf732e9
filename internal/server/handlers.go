package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"parking-floor/internal/logging"
	"parking-floor/internal/metrics"
	"parking-floor/internal/parking"
)

type Handler struct {
	serviceName string
	telemetry   *parking.TelemetryProvider
	prom        *metrics.PromSink
	validate    *validator.Validate
	defaultFee  int64
	desks       *parking.DeskHolder
}

// NewHandler serves the desk held by desks; a nil holder starts without a
// floor. defaultFee applies when a create request carries no fee.
func NewHandler(serviceName string, telemetry *parking.TelemetryProvider, prom *metrics.PromSink, desks *parking.DeskHolder, defaultFee int64) *Handler {
	if desks == nil {
		desks = parking.NewDeskHolder(nil)
	}
	return &Handler{
		serviceName: serviceName,
		telemetry:   telemetry,
		prom:        prom,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		defaultFee:  defaultFee,
		desks:       desks,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Meta:    extractMeta(r.Context()),
	})
}

func (h *Handler) CreateFloor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateFloorRequest
	if !h.decode(w, r, &req) {
		return
	}

	fee := h.defaultFee
	if req.FeePerSpot != nil {
		fee = *req.FeePerSpot
	}

	floor, err := parking.NewInstrumentedFloor(req.Spots, h.telemetry, h.prom)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}
	desk, err := parking.NewDesk(floor, fee, h.telemetry, h.prom)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	h.desks.Replace(desk)

	logging.Info(ctx).Int("spots", req.Spots).Int64("fee_per_spot", fee).Msg("parking floor created")

	WriteSuccess(ctx, w, "Parking floor created successfully", FloorResponse{
		Spots:      req.Spots,
		FeePerSpot: fee,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	status := desk.Status(ctx)

	WriteSuccess(ctx, w, "Status retrieved successfully", StatusResponse{
		Capacity:       status.Capacity(),
		Occupied:       status.Occupied,
		Available:      status.Capacity() - status.Occupied,
		LargestFreeRun: status.LargestFreeRun,
		FeePerSpot:     status.FeePerSpot,
		Spots:          status.Spots,
		FreeRuns:       status.FreeRuns,
		Occupants:      status.Occupants,
	})
}

func (h *Handler) GetSpots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	WriteSuccess(ctx, w, "Spots retrieved successfully", desk.Floor().Spots(ctx))
}

func (h *Handler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	var req RegisterDriverRequest
	if !h.decode(w, r, &req) {
		return
	}

	size, err := parking.ParseSizeClass(req.Size)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	info, err := desk.RegisterDriver(ctx, req.DriverID, size)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Driver registered successfully", info)
}

func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	WriteSuccess(ctx, w, "Drivers retrieved successfully", desk.Drivers())
}

func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	info, err := desk.Driver(chi.URLParam(r, "driverID"))
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Driver found", info)
}

func (h *Handler) Park(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	var req DriverRequest
	if !h.decode(w, r, &req) {
		return
	}

	span, err := desk.CheckIn(ctx, req.DriverID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	info, err := desk.Driver(req.DriverID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Vehicle parked successfully", DriverSpotsResponse{
		DriverID:  info.ID,
		VehicleID: info.VehicleID,
		Span:      span,
	})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	var req DriverRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := desk.CheckOut(ctx, req.DriverID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Spots vacated successfully", receipt)
}

func (h *Handler) GetDriverSpots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	driverID := chi.URLParam(r, "driverID")
	info, err := desk.Driver(driverID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	span, err := desk.Locate(ctx, driverID)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Vehicle found", DriverSpotsResponse{
		DriverID:  info.ID,
		VehicleID: info.VehicleID,
		Span:      span,
	})
}

func (h *Handler) ChargeDriver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	desk, ok := h.currentDesk(ctx, w)
	if !ok {
		return
	}

	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}

	info, err := desk.Charge(ctx, chi.URLParam(r, "driverID"), req.Amount)
	if err != nil {
		writeDomainError(ctx, w, err)
		return
	}

	WriteSuccess(ctx, w, "Driver charged", info)
}

func (h *Handler) currentDesk(ctx context.Context, w http.ResponseWriter) (*parking.Desk, bool) {
	desk := h.desks.Current()
	if desk == nil {
		WriteError(ctx, w, http.StatusBadRequest, "Parking floor not created. Create parking floor first")
		return nil, false
	}
	return desk, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	return "Invalid field " + fe.Field() + ": failed " + fe.Tag() + " validation"
}

func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, parking.ErrAllocationFailed),
		errors.Is(err, parking.ErrAlreadyParked),
		errors.Is(err, parking.ErrDriverExists),
		errors.Is(err, parking.ErrBalanceOverflow):
		status = http.StatusConflict
	case errors.Is(err, parking.ErrVehicleNotFound),
		errors.Is(err, parking.ErrDriverNotFound):
		status = http.StatusNotFound
	case errors.Is(err, parking.ErrInvalidConstruction),
		errors.Is(err, parking.ErrNegativeCharge),
		errors.Is(err, parking.ErrFloorNotCreated):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		logging.Error(ctx).Err(err).Msg("unexpected error")
	}
	WriteError(ctx, w, status, err.Error())
}
