package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
)

var _ = ginkgo.Describe("Guard", func() {
	var (
		now      time.Time
		sessions *session.Manager
		writer   *memoryWriter
		guard    *Guard
		reached  bool
		ok       http.Handler
	)

	const loginPath = "/api/v1/auth/login"

	ginkgo.BeforeEach(func() {
		now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		sessions = session.NewManager(session.Config{
			InactivityTimeout: 30 * time.Minute,
			AbsoluteLifetime:  8 * time.Hour,
		}, session.NewMemoryStore(), session.WithClock(func() time.Time { return now }))
		writer = &memoryWriter{}
		guard = NewGuard(audit.NewLogger(writer, quietLogger), loginPath, quietLogger)
		reached = false
		ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusOK)
		})
	})

	signIn := func(roles ...string) *http.Cookie {
		rec := httptest.NewRecorder()
		h := sessions.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		gomega.Expect(h.Create(session.Principal{UserID: 11, Email: "staff@hospital.test", Roles: roles})).To(gomega.Succeed())
		for _, c := range rec.Result().Cookies() {
			if c.Name == session.DefaultCookieName {
				return c
			}
		}
		ginkgo.Fail("no session cookie issued")
		return nil
	}

	serve := func(h http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		sessions.Middleware(h).ServeHTTP(rec, req)
		return rec
	}

	ginkgo.Describe("RequireAuthenticated", func() {
		ginkgo.It("redirects anonymous visitors and remembers where they were going", func() {
			rec := serve(guard.RequireAuthenticated(ok), "/api/v1/users/me?tab=profile", nil)

			gomega.Expect(reached).To(gomega.BeFalse())
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal(loginPath))
			gomega.Expect(writer.entries).To(gomega.BeEmpty())

			var pending *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == session.DefaultCookieName {
					pending = c
				}
			}
			gomega.Expect(pending).NotTo(gomega.BeNil())
			next := sessions.Load(httptest.NewRecorder(), withSessionCookie(pending))
			gomega.Expect(next.PopReturnTo()).To(gomega.Equal("/api/v1/users/me?tab=profile"))
		})

		ginkgo.It("does not remember a state-changing target", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			rec := httptest.NewRecorder()
			sessions.Middleware(guard.RequireAuthenticated(ok)).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))
			for _, c := range rec.Result().Cookies() {
				gomega.Expect(c.Name).NotTo(gomega.Equal(session.DefaultCookieName))
			}
		})

		ginkgo.It("turns away a request whose session was logged out while it was in flight", func() {
			cookie := signIn("doctor")
			inFlight := sessions.Load(httptest.NewRecorder(), withSessionCookie(cookie))
			sessions.Load(httptest.NewRecorder(), withSessionCookie(cookie)).Destroy()

			rec := httptest.NewRecorder()
			gomega.Expect(guard.Authenticate(rec, withSessionCookie(cookie), inFlight)).To(gomega.BeFalse())
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))

			again := sessions.Load(httptest.NewRecorder(), withSessionCookie(cookie))
			gomega.Expect(again.State()).To(gomega.Equal(session.Anonymous))
		})

		ginkgo.It("passes a live session and records activity", func() {
			cookie := signIn("doctor")

			now = now.Add(20 * time.Minute)
			rec := serve(guard.RequireAuthenticated(ok), "/api/v1/users/me", cookie)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			now = now.Add(20 * time.Minute)
			reached = false
			rec = serve(guard.RequireAuthenticated(ok), "/api/v1/users/me", cookie)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(reached).To(gomega.BeTrue())
		})

		ginkgo.It("destroys an expired session and leaves a flash instead of an audit entry", func() {
			cookie := signIn("doctor")
			now = now.Add(31 * time.Minute)

			rec := serve(guard.RequireAuthenticated(ok), "/api/v1/users/me", cookie)

			gomega.Expect(reached).To(gomega.BeFalse())
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))
			gomega.Expect(writer.entries).To(gomega.BeEmpty())

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
				RedirectTo string `json:"redirect_to"`
			}
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
			gomega.Expect(body.Error.Code).To(gomega.Equal("SESSION_EXPIRED"))
			gomega.Expect(body.RedirectTo).To(gomega.Equal(loginPath))

			old := sessions.Load(httptest.NewRecorder(), withSessionCookie(cookie))
			gomega.Expect(old.State()).To(gomega.Equal(session.Anonymous))

			var fresh *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == session.DefaultCookieName && c.MaxAge >= 0 && c.Value != "" {
					fresh = c
				}
			}
			gomega.Expect(fresh).NotTo(gomega.BeNil())
			flashed := sessions.Load(httptest.NewRecorder(), withSessionCookie(fresh))
			gomega.Expect(flashed.PopFlash()).To(gomega.Equal("Your session has expired. Please login again."))
		})
	})

	ginkgo.Describe("RequireRole", func() {
		ginkgo.It("redirects anonymous visitors without recording a denial", func() {
			rec := serve(guard.RequireRole(DenyForbidden, "admin")(ok), "/api/v1/audit-logs", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))
			gomega.Expect(writer.byAction(audit.ActionAccessDenied)).To(gomega.BeEmpty())
		})

		ginkgo.It("forbids a doctor from an admin resource and audits it", func() {
			cookie := signIn("doctor")

			rec := serve(guard.RequireRole(DenyForbidden, "admin")(ok), "/api/v1/users/3/unlock", cookie)

			gomega.Expect(reached).To(gomega.BeFalse())
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))

			denied := writer.byAction(audit.ActionAccessDenied)
			gomega.Expect(denied).To(gomega.HaveLen(1))
			gomega.Expect(*denied[0].UserID).To(gomega.Equal(int64(11)))
			gomega.Expect(denied[0].Metadata["requested_page"]).To(gomega.Equal("/api/v1/users/3/unlock"))
			gomega.Expect(denied[0].Metadata["user_roles"]).To(gomega.Equal([]string{"doctor"}))
			gomega.Expect(denied[0].Metadata["required_roles"]).To(gomega.Equal([]string{"admin"}))
		})

		ginkgo.It("can send a denied user back to the login gate instead", func() {
			cookie := signIn("pharmacist")
			reg := prometheus.NewRegistry()
			metrics, err := NewMetrics(reg)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			guard.WithMetrics(metrics)

			rec := serve(guard.RequireRole(DenyRedirectToLogin, "admin")(ok), "/api/v1/audit-logs", cookie)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusSeeOther))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.Equal(loginPath))
			gomega.Expect(writer.byAction(audit.ActionAccessDenied)).To(gomega.HaveLen(1))
		})

		ginkgo.It("admits a user holding any one of the allowed roles", func() {
			cookie := signIn("receptionist", "doctor")

			rec := serve(guard.RequireRole(DenyForbidden, "admin", "doctor")(ok), "/api/v1/appointments", cookie)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(reached).To(gomega.BeTrue())
			gomega.Expect(writer.entries).To(gomega.BeEmpty())
		})
	})
})

func withSessionCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	return req
}
