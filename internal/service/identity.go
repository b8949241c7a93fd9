package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/models"
)

// IdentityService bridges the external identity provider to the record
// store: it upserts users on sign-in and resolves caller user ids for
// the rest of the pipeline, through a read-through cache.
type IdentityService struct {
	registry Registry
	cache    UserCache
	log      *slog.Logger
}

// NewIdentityService creates the identity service. cache may be nil.
func NewIdentityService(registry Registry, cache UserCache, log *slog.Logger) *IdentityService {
	return &IdentityService{
		registry: registry,
		cache:    cache,
		log:      log,
	}
}

// SignIn records a successful sign-in from the identity provider,
// creating the user on first contact and refreshing name and image
// afterwards.
func (s *IdentityService) SignIn(ctx context.Context, email, name, image string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "sign_in",
		trace.WithAttributes(attribute.String("user_email", email)),
	)
	defer span.End()

	if email == "" {
		return nil, apperr.ErrValidation
	}
	if name == "" {
		name = "No Name Provided"
	}

	user, err := s.registry.UpsertUserByEmail(ctx, email, name, image)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.log.Warn("failed to cache user", "user_id", user.ID, "error", err)
		}
	}

	return user, nil
}

// ResolveUser returns the stored user for a caller id, or
// apperr.ErrNotFound when the id does not resolve.
func (s *IdentityService) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	if s.cache != nil {
		user, err := s.cache.GetUser(ctx, userID)
		if err != nil {
			s.log.Warn("user cache lookup failed", "user_id", userID, "error", err)
		} else if user != nil {
			return user, nil
		}
	}

	user, err := s.registry.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetUser(ctx, user); err != nil {
			s.log.Warn("failed to cache user", "user_id", userID, "error", err)
		}
	}

	return user, nil
}
