package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/sheetgate/sheetgate/internal/identity"
	"github.com/sheetgate/sheetgate/internal/platform/httpx"
)

// Handler exposes the rbac store as resource-style JSON endpoints. All
// routes require a verified identity; admin gating happens in the service.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers rbac routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Delete("/roles/{roleID}", h.deleteRole)

	r.Get("/sheets", h.listSheets)
	r.Post("/sheets", h.addSheet)
	r.Delete("/sheets/{sheetID}", h.deleteSheet)

	r.Get("/users", h.listUsers)
	r.Post("/users/assign-role", h.assignRole)

	r.Get("/user/me", h.myAccess)
}

type createRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

type addSheetRequest struct {
	SheetID string `json:"sheetId" validate:"required"`
	RoleID  string `json:"roleId" validate:"required"`
}

type assignRoleRequest struct {
	Email  string `json:"email" validate:"required,email"`
	RoleID string `json:"roleId" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roles, err := h.service.ListRoles(r.Context(), ident)
	if err != nil {
		h.respondError(w, r, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), ident, req.Name)
	if err != nil {
		h.respondError(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleID := chi.URLParam(r, "roleID")
	if uuid.Validate(roleID) != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.DeleteRole(r.Context(), ident, roleID); err != nil {
		h.respondError(w, r, "delete role", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listSheets(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sheets, err := h.service.ListSheets(r.Context(), ident)
	if err != nil {
		h.respondError(w, r, "list sheets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheets)
}

func (h *Handler) addSheet(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req addSheetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if uuid.Validate(req.RoleID) != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	sheet, err := h.service.AddSheet(r.Context(), ident, req.SheetID, req.RoleID)
	if err != nil {
		h.respondError(w, r, "add sheet", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sheet)
}

func (h *Handler) deleteSheet(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	sheetID := chi.URLParam(r, "sheetID")
	if uuid.Validate(sheetID) != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.DeleteSheet(r.Context(), ident, sheetID); err != nil {
		h.respondError(w, r, "delete sheet", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	users, err := h.service.ListUsers(r.Context(), ident)
	if err != nil {
		h.respondError(w, r, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if uuid.Validate(req.RoleID) != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	if err := h.service.AssignRole(r.Context(), ident, req.Email, req.RoleID); err != nil {
		h.respondError(w, r, "assign role", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) myAccess(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	access, err := h.service.MyAccess(r.Context(), ident)
	if err != nil {
		h.respondError(w, r, "my access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, access)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
