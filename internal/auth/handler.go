// Package auth wires the sign-in flow: the identity provider authenticates
// the caller, then the rbac store provisions the account and reports the
// caller's server-side resolved role and admin marker.
package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sheetgate/sheetgate/internal/identity"
	"github.com/sheetgate/sheetgate/internal/platform/httpx"
	"github.com/sheetgate/sheetgate/internal/rbac"
)

// Handler wires HTTP endpoints for the sign-in flow.
type Handler struct {
	logger *slog.Logger
	store  *rbac.Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, store *rbac.Service) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/signin", h.handleSignIn)
}

type signInResponse struct {
	Email   string  `json:"email"`
	IsAdmin bool    `json:"isAdmin"`
	Role    *string `json:"role"`
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	user, role, err := h.store.SignIn(r.Context(), ident)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("sign in", slog.String("subject", ident.Subject), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	resp := signInResponse{Email: user.Email, IsAdmin: user.IsAdmin}
	if role != nil {
		resp.Role = &role.Name
	}
	if h.logger != nil {
		h.logger.Info("sign in", slog.String("email", user.Email), slog.Bool("admin", user.IsAdmin))
	}
	httpx.JSON(w, http.StatusOK, resp)
}
