package middleware

import (
	"net/http"

	"github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/transport"
	"github.com/frahmantamala/hospital-auth/pkg/logger"
)

// ClientInfo records the caller's address and user agent for the audit trail.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := transport.ClientIP(r)

		ctx := internal.ContextWithClientInfo(r.Context(), internal.ClientInfo{
			IP:        ip,
			UserAgent: r.UserAgent(),
		})
		ctx = logger.With(ctx, "client_ip", ip)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
