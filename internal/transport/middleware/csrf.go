package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/transport"
)

const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "csrf_token"
)

// AuditRecorder is satisfied by *audit.Logger.
type AuditRecorder interface {
	Record(ctx context.Context, action audit.Action, metadata audit.Metadata, opts ...audit.Option)
}

type CSRF struct {
	base     *transport.BaseHandler
	recorder AuditRecorder
}

// NewCSRF builds the anti-forgery check. With a nil recorder rejections are only logged.
func NewCSRF(recorder AuditRecorder, logger *slog.Logger) *CSRF {
	return &CSRF{
		base:     transport.NewBaseHandler(logger),
		recorder: recorder,
	}
}

// Protect rejects state-changing requests whose token does not match the session's.
// It must run inside the session middleware.
func (c *CSRF) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		sess := session.FromContext(r.Context())
		candidate := r.Header.Get(CSRFHeader)
		if candidate == "" {
			candidate = r.PostFormValue(CSRFFormField)
		}

		if sess != nil && sess.VerifyCSRFToken(candidate) {
			next.ServeHTTP(w, r)
			return
		}

		c.base.Logger.WarnContext(r.Context(), "anti-forgery token rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"token_present", candidate != "")
		if c.recorder != nil {
			c.recorder.Record(r.Context(), audit.ActionCSRFRejected, audit.Metadata{
				"requested_page": r.URL.RequestURI(),
				"method":         r.Method,
			})
		}
		c.base.WriteAppError(w, internal.ErrCSRFMismatch)
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
