package handlers

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/service"
)

// StagingHandler returns the caller's pending files, each staged locally
// when possible.
type StagingHandler struct {
	stager *service.StagerService
	log    *slog.Logger
}

// NewStagingHandler creates the staging handler.
func NewStagingHandler(stager *service.StagerService, log *slog.Logger) *StagingHandler {
	return &StagingHandler{
		stager: stager,
		log:    log,
	}
}

type stagedFileResponse struct {
	*models.File
	LocalURL     string `json:"localUrl,omitempty"`
	StagingError string `json:"stagingError,omitempty"`
}

// ServeHTTP handles GET /api/files/pending. Every pending file appears
// in the response; a file whose staging failed carries its error marker
// instead of a local URL, and never fails the whole call.
func (h *StagingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "stage_files_request",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	span.SetAttributes(attribute.String("user_id", userID))

	staged, err := h.stager.StageAll(ctx, userID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	resp := make([]stagedFileResponse, 0, len(staged))
	for _, entry := range staged {
		item := stagedFileResponse{
			File:     entry.File,
			LocalURL: entry.LocalURL,
		}
		if entry.Err != nil {
			item.StagingError = entry.Err.Error()
		}
		resp = append(resp, item)
	}

	span.SetAttributes(attribute.Int("file_count", len(resp)))
	writeJSON(w, http.StatusOK, resp)
}
