package user_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		f        *fixture
		sessions *session.Manager
		router   http.Handler
		cookie   *http.Cookie
	)

	BeforeEach(func() {
		f = newFixture()
		sessions = session.NewManager(session.Config{}, session.NewMemoryStore())
		h := user.NewHandler(f.service)

		r := chi.NewRouter()
		r.Use(sessions.Middleware)
		r.Get("/users/me", h.GetCurrentUser)
		r.Post("/users/{id}/unlock", h.Unlock)
		r.Patch("/users/{id}/status", h.ChangeStatus)
		r.Put("/users/{id}/roles", h.ReplaceRoles)
		router = r

		rec := httptest.NewRecorder()
		sess := sessions.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(sess.Create(session.Principal{UserID: f.adminID, Email: "admin@hospital.test", Roles: []string{user.RoleAdmin}})).To(Succeed())
		cookie = rec.Result().Cookies()[0]
	})

	call := func(method, path, body string, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if withCookie {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("returns the signed-in user's profile with roles", func() {
		rec := call(http.MethodGet, "/users/me", "", true)

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp user.UserResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.ID).To(Equal(f.adminID))
		Expect(resp.Roles).To(Equal([]string{user.RoleAdmin}))
		Expect(rec.Body.String()).NotTo(ContainSubstring("credential"))
	})

	It("requires a signed-in user", func() {
		rec := call(http.MethodGet, "/users/me", "", false)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("unlocks an account", func() {
		Expect(f.store.SetStatus(f.ctx, f.nurseID, user.StatusLocked)).To(Succeed())

		rec := call(http.MethodPost, fmt.Sprintf("/users/%d/unlock", f.nurseID), "", true)

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp user.UserResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Status).To(Equal(user.StatusActive))
	})

	It("rejects a non-numeric id", func() {
		rec := call(http.MethodPost, "/users/abc/unlock", "", true)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("answers 404 for an unknown account", func() {
		rec := call(http.MethodPost, "/users/999/unlock", "", true)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("validates the requested status", func() {
		rec := call(http.MethodPatch, fmt.Sprintf("/users/%d/status", f.nurseID), `{"status":"archived"}`, true)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("INVALID_STATUS"))

		rec = call(http.MethodPatch, fmt.Sprintf("/users/%d/status", f.nurseID), `{"status":"inactive"}`, true)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("replaces roles", func() {
		rec := call(http.MethodPut, fmt.Sprintf("/users/%d/roles", f.nurseID), `{"roles":["doctor"]}`, true)

		Expect(rec.Code).To(Equal(http.StatusOK))
		var resp user.UserResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Roles).To(Equal([]string{user.RoleDoctor}))
	})

	It("requires the roles field", func() {
		rec := call(http.MethodPut, fmt.Sprintf("/users/%d/roles", f.nurseID), `{}`, true)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
