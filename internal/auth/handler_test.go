package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/database"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/user"
	userPostgres "github.com/frahmantamala/hospital-auth/internal/user/postgres"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Handler", func() {
	var (
		sessions *session.Manager
		handler  *Handler
	)

	ginkgo.BeforeEach(func() {
		ctx := context.Background()
		db, err := database.OpenInMemory()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		store := userPostgres.NewUserRepository(db)

		hash, err := testHasher.Hash("nurse-pass-1")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		_, err = store.CreateUser(ctx, user.NewUser{
			Email:      "nurse@hospital.test",
			Credential: hash,
			FullName:   "Carla Espinosa",
			Status:     user.StatusActive,
		})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		sessions = newSessionManager()
		handler = NewHandler(NewService(store, testHasher, audit.NewLogger(&memoryWriter{}, quietLogger), 5, quietLogger))
	})

	do := func(h http.HandlerFunc, method, body, contentType string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/auth/login", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		sessions.Middleware(h).ServeHTTP(rec, req)
		return rec
	}

	ginkgo.It("logs in with JSON and returns the anti-forgery token", func() {
		rec := do(handler.Login, http.MethodPost, `{"email":"NURSE@hospital.test","password":"nurse-pass-1"}`, "application/json", nil)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		var resp LoginResponse
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
		gomega.Expect(resp.CSRFToken).To(gomega.HaveLen(64))
		gomega.Expect(resp.RedirectTo).To(gomega.Equal(defaultLandingPath))
		gomega.Expect(resp.User.Email).To(gomega.Equal("nurse@hospital.test"))
		gomega.Expect(resp.User.Roles).To(gomega.BeEmpty())
	})

	ginkgo.It("accepts form posts", func() {
		form := url.Values{"email": {"nurse@hospital.test"}, "password": {"nurse-pass-1"}}
		rec := do(handler.Login, http.MethodPost, form.Encode(), "application/x-www-form-urlencoded", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
	})

	ginkgo.It("answers failures with the error taxonomy", func() {
		rec := do(handler.Login, http.MethodPost, `{"email":"nurse@hospital.test","password":"nope"}`, "application/json", nil)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(gomega.Succeed())
		gomega.Expect(body.Error.Code).To(gomega.Equal("INVALID_CREDENTIALS"))
		gomega.Expect(body.Error.Message).To(gomega.Equal("Invalid email or password"))
	})

	ginkgo.It("rejects a malformed body", func() {
		rec := do(handler.Login, http.MethodPost, `{"email":`, "application/json", nil)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("shows the flash message once on the login gate", func() {
		rec := httptest.NewRecorder()
		h := sessions.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		gomega.Expect(h.SetFlash("Your session has expired. Please login again.")).To(gomega.Succeed())
		cookie := rec.Result().Cookies()[0]

		first := do(handler.LoginGate, http.MethodGet, "", "", cookie)
		var gate LoginGateResponse
		gomega.Expect(json.Unmarshal(first.Body.Bytes(), &gate)).To(gomega.Succeed())
		gomega.Expect(gate.Authenticated).To(gomega.BeFalse())
		gomega.Expect(gate.Flash).To(gomega.Equal("Your session has expired. Please login again."))

		second := do(handler.LoginGate, http.MethodGet, "", "", cookie)
		gate = LoginGateResponse{}
		gomega.Expect(json.Unmarshal(second.Body.Bytes(), &gate)).To(gomega.Succeed())
		gomega.Expect(gate.Flash).To(gomega.BeEmpty())
	})

	ginkgo.It("registers a patient and starts a session", func() {
		body := `{"full_name":"Elliot Reid","email":"elliot@example.org","password":"elliot-pass","confirm_password":"elliot-pass"}`
		rec := do(handler.Register, http.MethodPost, body, "application/json", nil)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		var resp RegisterResponse
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
		gomega.Expect(resp.LoggedIn).To(gomega.BeTrue())
		gomega.Expect(resp.User.Roles).To(gomega.Equal([]string{"patient"}))
		gomega.Expect(resp.CSRFToken).NotTo(gomega.BeEmpty())
	})

	ginkgo.It("logs out with no content", func() {
		login := do(handler.Login, http.MethodPost, `{"email":"nurse@hospital.test","password":"nurse-pass-1"}`, "application/json", nil)
		cookie := login.Result().Cookies()[0]

		rec := do(handler.Logout, http.MethodPost, "", "", cookie)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
		after := sessions.Load(httptest.NewRecorder(), withSessionCookie(cookie))
		gomega.Expect(after.State()).To(gomega.Equal(session.Anonymous))
	})
})
