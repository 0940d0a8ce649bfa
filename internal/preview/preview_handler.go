package preview

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tourcast/tourcast/internal/api"
)

type Handler struct {
	logger  *slog.Logger
	service Service
}

func NewPreviewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// GetPreview handles GET /preview/{fingerprint}.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("PreviewHandler").Start(r.Context(), "GetPreview")
	defer span.End()

	l := h.logger.With(slog.String("handler", "GetPreview"))
	fingerprint := chi.URLParam(r, "fingerprint")
	span.SetAttributes(attribute.String("fingerprint", fingerprint))

	p, err := h.service.GetPreview(ctx, fingerprint)
	if err != nil {
		l.ErrorContext(ctx, "Failed to build preview", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "Preview failed")
		api.ErrorResponse(w, r, http.StatusInternalServerError, "failed to build preview")
		return
	}
	if p == nil {
		span.SetStatus(codes.Error, "Unknown fingerprint")
		api.ErrorResponse(w, r, http.StatusNotFound, "no tour for fingerprint")
		return
	}

	span.SetStatus(codes.Ok, "Preview served")
	api.WriteJSONResponse(w, r, http.StatusOK, p)
}
