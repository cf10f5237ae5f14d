package auth

import (
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport"
)

// DenyMode selects what a role check does with an authenticated user who lacks every allowed role.
type DenyMode int

const (
	DenyForbidden DenyMode = iota
	DenyRedirectToLogin
)

func (m DenyMode) String() string {
	if m == DenyRedirectToLogin {
		return "redirect"
	}
	return "forbidden"
}

type redirectBody struct {
	Error      *errors.AppError `json:"error"`
	RedirectTo string           `json:"redirect_to"`
}

// Guard gates handlers on the request's session. It trusts the roles captured at
// login and never reads the credential store.
type Guard struct {
	*transport.BaseHandler
	audit     AuditRecorder
	loginPath string
	metrics   *Metrics
}

func NewGuard(recorder AuditRecorder, loginPath string, logger *slog.Logger) *Guard {
	return &Guard{
		BaseHandler: transport.NewBaseHandler(logger),
		audit:       recorder,
		loginPath:   loginPath,
	}
}

func (g *Guard) WithMetrics(m *Metrics) *Guard {
	g.metrics = m
	return g
}

// Authenticate lets an authenticated, unexpired session through and touches it.
// Otherwise it answers with a redirect to the login gate and returns false. Expiry
// destroys the session and leaves a flash message instead of an audit entry.
func (g *Guard) Authenticate(w http.ResponseWriter, r *http.Request, sess *session.Handle) bool {
	if sess == nil {
		g.redirectToLogin(w, errors.ErrUnauthenticated)
		return false
	}

	switch sess.State() {
	case session.Authenticated:
		sess.Touch()
		if sess.State() == session.Authenticated {
			return true
		}
		// logged out by a concurrent request
		g.redirectToLogin(w, errors.ErrUnauthenticated)
		return false

	case session.Expired:
		sess.Destroy()
		if err := sess.SetFlash(errors.ErrSessionExpired.Message); err != nil {
			g.Logger.Warn("guard: failed to store expiry notice", "error", err)
		}
		g.redirectToLogin(w, errors.ErrSessionExpired)
		return false

	default:
		// only GET and HEAD targets are remembered
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if err := sess.SetReturnTo(r.URL.RequestURI()); err != nil {
				g.Logger.Warn("guard: failed to store return-to", "error", err)
			}
		}
		g.redirectToLogin(w, errors.ErrUnauthenticated)
		return false
	}
}

// Authorize runs Authenticate and then requires at least one of roles.
func (g *Guard) Authorize(w http.ResponseWriter, r *http.Request, sess *session.Handle, mode DenyMode, roles ...string) bool {
	if !g.Authenticate(w, r, sess) {
		return false
	}

	current := sess.CurrentRoles()
	if hasAnyRole(current, roles) {
		return true
	}

	if current == nil {
		current = []string{}
	}
	uid, _ := sess.CurrentUserID()
	g.audit.Record(r.Context(), audit.ActionAccessDenied, audit.Metadata{
		"user_id":        uid,
		"requested_page": r.URL.RequestURI(),
		"user_roles":     current,
		"required_roles": roles,
	}, audit.WithUserID(uid))
	g.metrics.denied(mode)

	g.Logger.WarnContext(r.Context(), "access denied",
		"user_id", uid,
		"path", r.URL.Path,
		"user_roles", current,
		"required_roles", roles)

	if mode == DenyRedirectToLogin {
		g.redirectToLogin(w, errors.ErrForbidden)
	} else {
		g.WriteAppError(w, errors.ErrForbidden)
	}
	return false
}

func (g *Guard) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Authenticate(w, r, session.FromContext(r.Context())) {
			next.ServeHTTP(w, r)
		}
	})
}

// RequireRole admits a request whose session holds any one of roles.
func (g *Guard) RequireRole(mode DenyMode, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Authorize(w, r, session.FromContext(r.Context()), mode, roles...) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func (g *Guard) redirectToLogin(w http.ResponseWriter, reason *errors.AppError) {
	w.Header().Set("Location", g.loginPath)
	g.WriteJSON(w, http.StatusSeeOther, redirectBody{Error: reason, RedirectTo: g.loginPath})
}

func hasAnyRole(current, allowed []string) bool {
	for _, want := range allowed {
		for _, have := range current {
			if have == want {
				return true
			}
		}
	}
	return false
}
