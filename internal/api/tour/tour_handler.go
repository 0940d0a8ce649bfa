package tour

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tourcast/tourcast/internal/api"
	"github.com/tourcast/tourcast/internal/pipeline"
	"github.com/tourcast/tourcast/internal/preview"
	"github.com/tourcast/tourcast/internal/types"
)

// Orchestrator is the pipeline surface the handler drives.
type Orchestrator interface {
	Submit(ctx context.Context, req types.TourRequest) (*types.Tour, *pipeline.TourHandle, error)
	Retry(ctx context.Context, fingerprint string) (*pipeline.TourHandle, error)
	Tour(ctx context.Context, fingerprint string) (*types.Tour, error)
	Status(ctx context.Context, fingerprint string) (*types.StatusRecord, error)
}

type Handler struct {
	logger          *slog.Logger
	orch            Orchestrator
	previewSegments int
}

func NewTourHandler(orch Orchestrator, previewSegments int, logger *slog.Logger) *Handler {
	return &Handler{
		logger:          logger,
		orch:            orch,
		previewSegments: previewSegments,
	}
}

type acceptedResponse struct {
	Fingerprint string         `json:"fingerprint"`
	Status      types.RunState `json:"status"`
}

// CreateTour handles POST /tours. A fingerprint whose tour already exists
// returns it immediately; otherwise the response is 202 with the
// fingerprint to poll. Guests receive the truncated preview projection.
func (h *Handler) CreateTour(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "CreateTour")
	defer span.End()

	l := h.logger.With(slog.String("handler", "CreateTour"))

	var req types.TourRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request body", slog.Any("error", err))
		span.SetStatus(codes.Error, "Invalid request body")
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Mode = clientMode(r)
	span.SetAttributes(attribute.String("request.mode", string(req.Mode)))

	tour, handle, err := h.orch.Submit(ctx, req)
	if err != nil {
		var ve *types.ValidationError
		if errors.As(err, &ve) {
			l.WarnContext(ctx, "Invalid tour request", slog.Any("error", err))
			span.SetStatus(codes.Error, "Validation failed")
			api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
			return
		}
		l.ErrorContext(ctx, "Failed to submit tour request", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Submission failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to submit tour request")
		return
	}

	if tour != nil {
		span.SetStatus(codes.Ok, "Tour served")
		h.writeTour(w, r, req.Mode, tour)
		return
	}

	l.InfoContext(ctx, "Tour build accepted", slog.String("fingerprint", handle.Fingerprint))
	span.SetStatus(codes.Ok, "Tour build accepted")
	api.WriteJSONResponse(w, r, http.StatusAccepted, acceptedResponse{
		Fingerprint: handle.Fingerprint,
		Status:      types.StateReceived,
	})
}

// GetTour handles GET /tours/{fingerprint}. While a run is still building
// the response is 409 with the current stage so clients keep polling.
func (h *Handler) GetTour(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "GetTour")
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetTour"))
	fingerprint := chi.URLParam(r, "fingerprint")
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	tour, err := h.orch.Tour(ctx, fingerprint)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load tour", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lookup failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to load tour")
		return
	}
	if tour != nil {
		span.SetStatus(codes.Ok, "Tour served")
		h.writeTour(w, r, clientMode(r), tour)
		return
	}

	status, err := h.orch.Status(ctx, fingerprint)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load run status", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Status lookup failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to load run status")
		return
	}
	if status == nil {
		span.SetStatus(codes.Error, "Unknown fingerprint")
		api.ErrorResponse(w, r, http.StatusNotFound, "no tour for fingerprint")
		return
	}

	span.SetStatus(codes.Ok, "Run in progress")
	api.WriteJSONResponse(w, r, http.StatusConflict, status)
}

// GetStatus handles GET /tours/{fingerprint}/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "GetStatus")
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetStatus"))
	fingerprint := chi.URLParam(r, "fingerprint")
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	status, err := h.orch.Status(ctx, fingerprint)
	if err != nil {
		l.ErrorContext(ctx, "Failed to load run status", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Status lookup failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to load run status")
		return
	}
	if status == nil {
		span.SetStatus(codes.Error, "Unknown fingerprint")
		api.ErrorResponse(w, r, http.StatusNotFound, "no run for fingerprint")
		return
	}

	span.SetStatus(codes.Ok, "Status served")
	api.WriteJSONResponse(w, r, http.StatusOK, status)
}

// RetryTour handles POST /tours/{fingerprint}/retry. Only FAILED runs are
// retryable; the restarted run resumes from its last checkpoint.
func (h *Handler) RetryTour(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("TourHandler").Start(r.Context(), "RetryTour")
	defer span.End()

	l := h.logger.With(slog.String("handler", "RetryTour"))
	fingerprint := chi.URLParam(r, "fingerprint")
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	handle, err := h.orch.Retry(ctx, fingerprint)
	if err != nil {
		l.WarnContext(ctx, "Retry rejected", slog.Any("error", err))
		span.SetStatus(codes.Error, "Retry rejected")
		api.ErrorResponse(w, r, http.StatusConflict, err.Error())
		return
	}

	l.InfoContext(ctx, "Retry accepted", slog.String("fingerprint", fingerprint))
	span.SetStatus(codes.Ok, "Retry accepted")
	api.WriteJSONResponse(w, r, http.StatusAccepted, acceptedResponse{
		Fingerprint: handle.Fingerprint,
		Status:      types.StateRetrying,
	})
}

func (h *Handler) writeTour(w http.ResponseWriter, r *http.Request, mode types.Mode, tour *types.Tour) {
	if mode == types.ModeGuest {
		api.WriteJSONResponse(w, r, http.StatusOK, preview.Project(tour, h.previewSegments))
		return
	}
	api.WriteJSONResponse(w, r, http.StatusOK, tour)
}

// clientMode reads the caller mode the gateway asserts on every request.
// Absent or unknown values degrade to guest.
func clientMode(r *http.Request) types.Mode {
	if types.Mode(r.Header.Get("X-Client-Mode")) == types.ModeAuthenticated {
		return types.ModeAuthenticated
	}
	return types.ModeGuest
}
