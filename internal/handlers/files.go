package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/service"
)

// IntakeHandler registers uploaded documents.
type IntakeHandler struct {
	intake *service.IntakeService
	log    *slog.Logger
}

// NewIntakeHandler creates the intake handler.
func NewIntakeHandler(intake *service.IntakeService, log *slog.Logger) *IntakeHandler {
	return &IntakeHandler{
		intake: intake,
		log:    log,
	}
}

type intakeRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
}

type intakeResponse struct {
	Message string       `json:"message"`
	File    *models.File `json:"file"`
}

// ServeHTTP handles POST /api/files
func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "register_file_request",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	userID, ok := UserIDFromContext(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	span.SetAttributes(attribute.String("user_id", userID))

	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	file, err := h.intake.Register(ctx, userID, req.URL, req.Filename, req.FileType)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	span.SetAttributes(attribute.String("file_id", file.ID))
	writeJSON(w, http.StatusCreated, intakeResponse{
		Message: "File uploaded successfully",
		File:    file,
	})
}
