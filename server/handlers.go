package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ZenMix/config"
	"ZenMix/core/auth"
	"ZenMix/core/catalog"
	"ZenMix/core/mixer"
	"ZenMix/core/mixstore"
	"ZenMix/repository"
)

// APIHandler holds the collaborators for all the API endpoints.
type APIHandler struct {
	cfg      *config.Config
	jwt      *auth.JWT
	userRepo repository.UserRepository
	catalog  *catalog.Service
	mixes    *mixstore.Store
	sessions *mixer.Manager
}

// NewAPIHandler creates a new APIHandler with its dependencies injected.
func NewAPIHandler(
	cfg *config.Config,
	jwt *auth.JWT,
	userRepo repository.UserRepository,
	catalogSvc *catalog.Service,
	mixes *mixstore.Store,
	sessions *mixer.Manager,
) *APIHandler {
	return &APIHandler{
		cfg:      cfg,
		jwt:      jwt,
		userRepo: userRepo,
		catalog:  catalogSvc,
		mixes:    mixes,
		sessions: sessions,
	}
}

// AuthMiddleware validates the bearer token and stores the user identity
// in the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := h.jwt.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// contextIdentity implements auth.Identity over the request context
// populated by AuthMiddleware.
type contextIdentity struct{}

// NewContextIdentity returns the identity provider backed by request
// contexts.
func NewContextIdentity() auth.Identity {
	return contextIdentity{}
}

func (contextIdentity) CurrentUserID(ctx context.Context) (int64, error) {
	return GetUserIDFromContext(ctx)
}
