package user

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport"
	"github.com/frahmantamala/hospital-auth/pkg/logger"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	Unlock(ctx context.Context, actorID, id int64) (*User, error)
	ChangeStatus(ctx context.Context, actorID, id int64, status Status) (*User, error)
	ReplaceRoles(ctx context.Context, actorID, id int64, names []string) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	u, err := h.Service.GetByID(r.Context(), actorID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, NewUserResponse(u))
}

// Unlock handles POST /users/{id}/unlock
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	u, err := h.Service.Unlock(r.Context(), actorID, id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, NewUserResponse(u))
}

// ChangeStatus handles PATCH /users/{id}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	var dto StatusDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	u, err := h.Service.ChangeStatus(r.Context(), actorID, id, Status(dto.Status))
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, NewUserResponse(u))
}

// ReplaceRoles handles PUT /users/{id}/roles
func (h *Handler) ReplaceRoles(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.targetID(w, r)
	if !ok {
		return
	}

	var dto RolesDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	u, err := h.Service.ReplaceRoles(r.Context(), actorID, id, dto.Roles)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, NewUserResponse(u))
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		h.WriteAppError(w, errors.ErrUnauthenticated)
		return 0, false
	}
	id, ok := sess.CurrentUserID()
	if !ok {
		h.WriteAppError(w, errors.ErrUnauthenticated)
		return 0, false
	}
	return id, true
}

func (h *Handler) targetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, errors.NewValidationFieldError("id", "invalid user id", errors.ErrCodeValidationFailed))
		return 0, false
	}
	return id, true
}
