package auth

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport"
	"github.com/frahmantamala/hospital-auth/internal/user"
	"github.com/frahmantamala/hospital-auth/pkg/logger"
)

const defaultLandingPath = "/api/v1/users/me"

type ServiceAPI interface {
	Login(ctx context.Context, sess *session.Handle, email, password string) (*LoginResult, error)
	Register(ctx context.Context, sess *session.Handle, dto RegisterDTO) (*RegisterResult, error)
	Logout(ctx context.Context, sess *session.Handle)
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

var errNoSession = stdErrors.New("session middleware not installed")

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Handle, bool) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		h.WriteAppError(w, errors.NewInternalError("Session unavailable", errNoSession))
		return nil, false
	}
	return sess, true
}

// LoginGate is where the guard sends unauthenticated visitors. It hands over any pending flash message.
func (h *Handler) LoginGate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	resp := LoginGateResponse{Flash: sess.PopFlash()}
	if sess.State() == session.Authenticated {
		resp.Authenticated = true
		resp.User = SessionUserFrom(sess)
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	if _, err := h.Service.Login(r.Context(), sess, dto.Email, dto.Password); err != nil {
		h.WriteAppError(w, err)
		return
	}

	redirect := sess.PopReturnTo()
	if redirect == "" {
		redirect = defaultLandingPath
	}
	h.WriteJSON(w, http.StatusOK, LoginResponse{
		User:       SessionUserFrom(sess),
		CSRFToken:  sess.CSRFToken(),
		RedirectTo: redirect,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var dto RegisterDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, err)
		return
	}

	result, err := h.Service.Register(r.Context(), sess, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	resp := RegisterResponse{LoggedIn: result.LoggedIn}
	if result.LoggedIn {
		resp.User = SessionUserFrom(sess)
		resp.CSRFToken = sess.CSRFToken()
		resp.Message = "Account created successfully."
	} else {
		resp.User = sessionUserFromRecord(result.User)
		resp.Message = "Account created successfully! However, auto-login failed. Please login manually."
	}
	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.Service.Logout(r.Context(), sess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, SessionResponse{
		User:      SessionUserFrom(sess),
		CSRFToken: sess.CSRFToken(),
	})
}

func sessionUserFromRecord(u *user.User) *SessionUser {
	if u == nil {
		return nil
	}
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return &SessionUser{ID: u.ID, Email: u.Email, FullName: u.FullName, Roles: roles}
}
