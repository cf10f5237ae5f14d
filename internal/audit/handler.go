package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/transport"
	"github.com/frahmantamala/hospital-auth/pkg/logger"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100
)

type Handler struct {
	*transport.BaseHandler
	Reader Reader
}

func NewHandler(reader Reader) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Reader:      reader,
	}
}

type ListResponse struct {
	Entries []Entry `json:"entries"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
	Total   int     `json:"total"`
}

// List handles GET /audit-logs?page=&per_page=&action=&user_id=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if raw := q.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			h.WriteAppError(w, errors.NewValidationFieldError("page", "page must be a positive integer", errors.ErrCodeValidationFailed))
			return
		}
		page = p
	}

	perPage := defaultPerPage
	if raw := q.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.WriteAppError(w, errors.NewValidationFieldError("per_page", "per_page must be a positive integer", errors.ErrCodeValidationFailed))
			return
		}
		perPage = min(n, maxPerPage)
	}

	filter := Filter{
		Action: Action(q.Get("action")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.WriteAppError(w, errors.NewValidationFieldError("user_id", "user_id must be an integer", errors.ErrCodeValidationFailed))
			return
		}
		filter.UserID = &id
	}

	entries, total, err := h.Reader.List(r.Context(), filter)
	if err != nil {
		h.WriteAppError(w, errors.ErrPersistenceUnavailable.WithCause(err))
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{
		Entries: entries,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	})
}
