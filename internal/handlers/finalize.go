package handlers

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/service"
)

// FinalizeHandler completes the caller's order.
type FinalizeHandler struct {
	finalizer *service.FinalizerService
	log       *slog.Logger
}

// NewFinalizeHandler creates the finalize handler.
func NewFinalizeHandler(finalizer *service.FinalizerService, log *slog.Logger) *FinalizeHandler {
	return &FinalizeHandler{
		finalizer: finalizer,
		log:       log,
	}
}

type finalizeResponse struct {
	Message   string `json:"message"`
	Completed int64  `json:"completed"`
}

// ServeHTTP handles POST /api/files/complete
func (h *FinalizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "finalize_request",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	span.SetAttributes(attribute.String("user_id", userID))

	count, err := h.finalizer.CompleteAll(ctx, userID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	span.SetAttributes(attribute.Int64("files_completed", count))
	writeJSON(w, http.StatusOK, finalizeResponse{
		Message:   "All files are completed",
		Completed: count,
	})
}
