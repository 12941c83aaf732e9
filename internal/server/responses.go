package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"parking-floor/internal/parking"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type CreateFloorRequest struct {
	Spots      int    `json:"spots" validate:"gt=0,lte=1048576"`
	FeePerSpot *int64 `json:"fee_per_spot" validate:"omitempty,gte=0"`
}

type RegisterDriverRequest struct {
	DriverID string `json:"driver_id" validate:"required,max=64"`
	Size     string `json:"size" validate:"required"`
}

type DriverRequest struct {
	DriverID string `json:"driver_id" validate:"required"`
}

type ChargeRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

type FloorResponse struct {
	Spots      int   `json:"spots"`
	FeePerSpot int64 `json:"fee_per_spot"`
}

type DriverSpotsResponse struct {
	DriverID  string       `json:"driver_id"`
	VehicleID string       `json:"vehicle_id"`
	Span      parking.Span `json:"span"`
}

type StatusResponse struct {
	Capacity       int                 `json:"capacity"`
	Occupied       int                 `json:"occupied"`
	Available      int                 `json:"available"`
	LargestFreeRun int                 `json:"largest_free_run"`
	FeePerSpot     int64               `json:"fee_per_spot"`
	Spots          []parking.SpotState `json:"spots"`
	FreeRuns       []parking.Span      `json:"free_runs"`
	Occupants      []parking.Occupant  `json:"occupants"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

func WriteSuccess(ctx context.Context, w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    extractMeta(ctx),
	})
}

func WriteError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Response{
		Success: false,
		Error:   message,
		Meta:    extractMeta(ctx),
	})
}
