package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/storage"
)

// UploadsHandler issues presigned URLs so the browser can push document
// bytes straight to object storage. The resulting retrieval URL is what
// later gets registered through intake.
type UploadsHandler struct {
	uploads *storage.UploadClient
	log     *slog.Logger
}

// NewUploadsHandler creates the uploads handler.
func NewUploadsHandler(uploads *storage.UploadClient, log *slog.Logger) *UploadsHandler {
	return &UploadsHandler{
		uploads: uploads,
		log:     log,
	}
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type uploadResponse struct {
	UploadURL string `json:"uploadUrl"`
	URL       string `json:"url"`
	Key       string `json:"key"`
}

// ServeHTTP handles POST /api/uploads
func (h *UploadsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "presign_upload_request",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if _, ok := UserIDFromContext(ctx); !ok {
		writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	key := storage.ObjectKey(req.Filename)
	span.SetAttributes(attribute.String("object_key", key))

	uploadURL, err := h.uploads.PresignPut(ctx, key)
	if err != nil {
		span.RecordError(err)
		h.log.Error("failed to presign upload", "object_key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	retrievalURL, err := h.uploads.PresignGet(ctx, key, req.ContentType)
	if err != nil {
		span.RecordError(err)
		h.log.Error("failed to presign retrieval", "object_key", key, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		UploadURL: uploadURL,
		URL:       retrievalURL,
		Key:       key,
	})
}
