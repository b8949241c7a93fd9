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

// SignInHandler records a sign-in reported by the identity provider and
// hands back a session token.
type SignInHandler struct {
	identity *service.IdentityService
	tokens   *TokenManager
	log      *slog.Logger
}

// NewSignInHandler creates the sign-in handler.
func NewSignInHandler(identity *service.IdentityService, tokens *TokenManager, log *slog.Logger) *SignInHandler {
	return &SignInHandler{
		identity: identity,
		tokens:   tokens,
		log:      log,
	}
}

type signInRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type signInResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ServeHTTP handles POST /api/auth/signin
func (h *SignInHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ctx, span := tracer.Start(ctx, "sign_in_request",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.identity.SignIn(ctx, req.Email, req.Name, req.Image)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	token, err := h.tokens.Sign(user.ID)
	if err != nil {
		span.RecordError(err)
		h.log.Error("failed to sign session token", "user_id", user.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	span.SetAttributes(attribute.String("user_id", user.ID))
	writeJSON(w, http.StatusOK, signInResponse{Token: token, User: user})
}
