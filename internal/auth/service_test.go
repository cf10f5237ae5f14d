package auth

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/database"
	"github.com/frahmantamala/hospital-auth/internal/lockout"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/user"
	userPostgres "github.com/frahmantamala/hospital-auth/internal/user/postgres"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testHasher  = NewArgon2Hasher(Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
)

// memoryWriter keeps audit entries for assertions
type memoryWriter struct {
	entries []audit.Entry
}

func (m *memoryWriter) Write(_ context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryWriter) byAction(action audit.Action) []audit.Entry {
	var out []audit.Entry
	for _, e := range m.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// failingStore breaks the credential lookup to simulate an outage
type failingStore struct {
	user.Store
}

func (failingStore) FindUserByEmail(context.Context, string) (*user.User, error) {
	return nil, stdErrors.New("dial tcp: connection refused")
}

func newSessionManager() *session.Manager {
	return session.NewManager(session.Config{}, session.NewMemoryStore())
}

func newHandle(m *session.Manager) *session.Handle {
	return m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

var _ = ginkgo.Describe("Service", func() {
	var (
		ctx      context.Context
		store    *userPostgres.UserRepository
		writer   *memoryWriter
		service  *Service
		sessions *session.Manager
		doctorID int64
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		db, err := database.OpenInMemory()
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		store = userPostgres.NewUserRepository(db)

		writer = &memoryWriter{}
		service = NewService(store, testHasher, audit.NewLogger(writer, quietLogger), 5, quietLogger)
		sessions = newSessionManager()

		spec, _ := user.DefaultRoleSpec(user.RoleDoctor)
		role, err := store.EnsureRole(ctx, spec)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		hash, err := testHasher.Hash("correct-horse")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		doctorID, err = store.CreateUser(ctx, user.NewUser{
			Email:      "Doctor@Hospital.test",
			Credential: hash,
			FullName:   "Gregory House",
			Status:     user.StatusActive,
			RoleIDs:    []int64{role.ID},
		})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	failTimes := func(n int) {
		for i := 0; i < n; i++ {
			_, err := store.IncrementFailedAttempts(ctx, doctorID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
		}
	}

	ginkgo.Describe("Login", func() {
		ginkgo.Context("when credentials are valid", func() {
			ginkgo.It("creates a session and resets the failure counter", func() {
				// Given
				failTimes(3)
				sess := newHandle(sessions)

				// When
				result, err := service.Login(ctx, sess, "doctor@hospital.test", "correct-horse")

				// Then
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(result.Outcome).To(gomega.Equal(lockout.Success))
				gomega.Expect(sess.State()).To(gomega.Equal(session.Authenticated))
				gomega.Expect(sess.CurrentRoles()).To(gomega.Equal([]string{"doctor"}))

				stored, err := store.FindUserByID(ctx, doctorID)
				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(stored.FailedLoginAttempts).To(gomega.Equal(0))
				gomega.Expect(stored.LastLoginAt).NotTo(gomega.BeNil())

				success := writer.byAction(audit.ActionLoginSuccess)
				gomega.Expect(success).To(gomega.HaveLen(1))
				gomega.Expect(*success[0].UserID).To(gomega.Equal(doctorID))
				gomega.Expect(success[0].Metadata["roles"]).To(gomega.Equal([]string{"doctor"}))
			})

			ginkgo.It("regenerates the session identifier", func() {
				sess := newHandle(sessions)
				gomega.Expect(sess.SetReturnTo("/api/v1/users/me")).To(gomega.Succeed())
				before := sess.ID()
				gomega.Expect(before).NotTo(gomega.BeEmpty())

				_, err := service.Login(ctx, sess, "DOCTOR@hospital.test", "correct-horse")

				gomega.Expect(err).NotTo(gomega.HaveOccurred())
				gomega.Expect(sess.ID()).NotTo(gomega.Equal(before))
			})
		})

		ginkgo.Context("when the email is unknown", func() {
			ginkgo.It("returns the generic failure and audits the reason anonymously", func() {
				_, err := service.Login(ctx, newHandle(sessions), "nobody@hospital.test", "whatever1")

				gomega.Expect(err).To(gomega.BeIdenticalTo(errors.ErrInvalidCredentials))
				fails := writer.byAction(audit.ActionLoginFail)
				gomega.Expect(fails).To(gomega.HaveLen(1))
				gomega.Expect(fails[0].UserID).To(gomega.BeNil())
				gomega.Expect(fails[0].Metadata["reason"]).To(gomega.Equal("user_not_found"))
			})
		})

		ginkgo.Context("when the password is wrong", func() {
			ginkgo.It("answers exactly like an unknown email", func() {
				_, unknownErr := service.Login(ctx, newHandle(sessions), "nobody@hospital.test", "whatever1")
				_, wrongErr := service.Login(ctx, newHandle(sessions), "doctor@hospital.test", "wrong-horse")

				gomega.Expect(wrongErr.Error()).To(gomega.Equal(unknownErr.Error()))
				gomega.Expect(wrongErr).To(gomega.BeIdenticalTo(errors.ErrInvalidCredentials))
			})

			ginkgo.It("locks the account on the attempt that reaches the threshold", func() {
				// Given an active account with 4 prior failures
				failTimes(4)
				sess := newHandle(sessions)

				// When
				result, err := service.Login(ctx, sess, "doctor@hospital.test", "wrong-horse")

				// Then
				gomega.Expect(err).To(gomega.BeIdenticalTo(errors.ErrAccountLockedNow))
				gomega.Expect(result.Outcome).To(gomega.Equal(lockout.WrongCredential))
				gomega.Expect(result.FailedAttempts).To(gomega.Equal(5))
				gomega.Expect(result.Locked).To(gomega.BeTrue())
				gomega.Expect(sess.State()).To(gomega.Equal(session.Anonymous))

				stored, _ := store.FindUserByID(ctx, doctorID)
				gomega.Expect(stored.Status).To(gomega.Equal(user.StatusLocked))
				gomega.Expect(stored.FailedLoginAttempts).To(gomega.Equal(5))

				fails := writer.byAction(audit.ActionLoginFail)
				gomega.Expect(fails).To(gomega.HaveLen(1))
				gomega.Expect(fails[0].Metadata["locked"]).To(gomega.BeTrue())
				gomega.Expect(fails[0].Metadata["failed_attempts"]).To(gomega.Equal(5))
				gomega.Expect(*fails[0].UserID).To(gomega.Equal(doctorID))
			})

			ginkgo.It("keeps the lock after the right password is supplied", func() {
				for i := 0; i < 5; i++ {
					_, _ = service.Login(ctx, newHandle(sessions), "doctor@hospital.test", "wrong-horse")
				}

				sess := newHandle(sessions)
				result, err := service.Login(ctx, sess, "doctor@hospital.test", "correct-horse")

				gomega.Expect(err).To(gomega.BeIdenticalTo(errors.ErrAccountLocked))
				gomega.Expect(result.Outcome).To(gomega.Equal(lockout.AccountLocked))
				gomega.Expect(sess.State()).To(gomega.Equal(session.Anonymous))
				last := writer.byAction(audit.ActionLoginFail)
				gomega.Expect(last[len(last)-1].Metadata["reason"]).To(gomega.Equal("account_locked"))
			})
		})

		ginkgo.Context("when the account is inactive", func() {
			ginkgo.It("returns the inactive message without touching the counter", func() {
				gomega.Expect(store.SetStatus(ctx, doctorID, user.StatusInactive)).To(gomega.Succeed())

				_, err := service.Login(ctx, newHandle(sessions), "doctor@hospital.test", "wrong-horse")

				gomega.Expect(err).To(gomega.BeIdenticalTo(errors.ErrAccountInactive))
				stored, _ := store.FindUserByID(ctx, doctorID)
				gomega.Expect(stored.FailedLoginAttempts).To(gomega.Equal(0))
			})
		})

		ginkgo.Context("when input is missing", func() {
			ginkgo.It("returns a validation error and writes no audit entry", func() {
				_, err := service.Login(ctx, newHandle(sessions), "", "")

				appErr, ok := errors.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(appErr.Type).To(gomega.Equal(errors.ErrorTypeValidation))
				gomega.Expect(writer.entries).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when the credential store is down", func() {
			ginkgo.It("fails closed", func() {
				broken := NewService(failingStore{Store: store}, testHasher, audit.NewLogger(writer, quietLogger), 5, quietLogger)
				sess := newHandle(sessions)

				_, err := broken.Login(ctx, sess, "doctor@hospital.test", "correct-horse")

				gomega.Expect(stdErrors.Is(err, errors.ErrPersistenceUnavailable)).To(gomega.BeTrue())
				gomega.Expect(sess.State()).To(gomega.Equal(session.Anonymous))
			})
		})
	})

	ginkgo.Describe("Register", func() {
		valid := func() RegisterDTO {
			return RegisterDTO{
				FullName:        "Jane Patient",
				Email:           "Jane@Example.org",
				Phone:           "+1 555 0100",
				Password:        "longenough",
				ConfirmPassword: "longenough",
			}
		}

		ginkgo.It("creates a patient and logs them in", func() {
			sess := newHandle(sessions)

			result, err := service.Register(ctx, sess, valid())

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(result.LoggedIn).To(gomega.BeTrue())
			gomega.Expect(sess.CurrentRoles()).To(gomega.Equal([]string{user.RolePatient}))
			gomega.Expect(sess.CurrentEmail()).To(gomega.Equal("jane@example.org"))

			stored, err := store.FindUserByEmail(ctx, "JANE@example.org")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(stored.Credential).NotTo(gomega.Equal("longenough"))
			gomega.Expect(*stored.Phone).To(gomega.Equal("+1 555 0100"))

			registered := writer.byAction(audit.ActionPatientRegistered)
			gomega.Expect(registered).To(gomega.HaveLen(1))
			gomega.Expect(*registered[0].UserID).To(gomega.Equal(stored.ID))
			gomega.Expect(writer.byAction(audit.ActionLoginSuccess)).To(gomega.HaveLen(1))
		})

		ginkgo.It("rejects a duplicate email in any case", func() {
			dto := valid()
			dto.Email = "DOCTOR@hospital.TEST"

			_, err := service.Register(ctx, newHandle(sessions), dto)

			gomega.Expect(err).To(gomega.BeIdenticalTo(errors.ErrDuplicateEmail))
		})

		ginkgo.DescribeTable("validation",
			func(mutate func(*RegisterDTO), field, code string) {
				dto := valid()
				mutate(&dto)

				_, err := service.Register(ctx, newHandle(sessions), dto)

				appErr, ok := errors.IsAppError(err)
				gomega.Expect(ok).To(gomega.BeTrue())
				details, ok := appErr.Details.(errors.ValidationErrors)
				gomega.Expect(ok).To(gomega.BeTrue())
				gomega.Expect(details.Errors).To(gomega.ContainElement(gomega.And(
					gomega.HaveField("Field", field),
					gomega.HaveField("Code", code),
				)))
				gomega.Expect(writer.entries).To(gomega.BeEmpty())
			},
			ginkgo.Entry("missing name", func(d *RegisterDTO) { d.FullName = "  " }, "full_name", "VALIDATION_FAILED"),
			ginkgo.Entry("malformed email", func(d *RegisterDTO) { d.Email = "jane.example.org" }, "email", "INVALID_EMAIL"),
			ginkgo.Entry("short password", func(d *RegisterDTO) { d.Password, d.ConfirmPassword = "short", "short" }, "password", "PASSWORD_TOO_SHORT"),
			ginkgo.Entry("mismatched confirmation", func(d *RegisterDTO) { d.ConfirmPassword = "different1" }, "confirm_password", "PASSWORD_MISMATCH"),
		)

		ginkgo.It("creates the patient role when it does not exist yet", func() {
			_, err := service.Register(ctx, newHandle(sessions), valid())
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			role, err := store.FindRoleByName(ctx, user.RolePatient)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(role).NotTo(gomega.BeNil())
			gomega.Expect(role.DisplayName).To(gomega.Equal("Patient"))
		})
	})

	ginkgo.Describe("Logout", func() {
		ginkgo.It("audits the user and destroys the session", func() {
			sess := newHandle(sessions)
			_, err := service.Login(ctx, sess, "doctor@hospital.test", "correct-horse")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			id := sess.ID()

			service.Logout(ctx, sess)

			gomega.Expect(sess.State()).To(gomega.Equal(session.Anonymous))
			again := sessions.Load(httptest.NewRecorder(), withCookie(id))
			gomega.Expect(again.State()).To(gomega.Equal(session.Anonymous))
			logouts := writer.byAction(audit.ActionLogout)
			gomega.Expect(logouts).To(gomega.HaveLen(1))
			gomega.Expect(*logouts[0].UserID).To(gomega.Equal(doctorID))
		})

		ginkgo.It("writes nothing for an anonymous session", func() {
			service.Logout(ctx, newHandle(sessions))
			gomega.Expect(writer.byAction(audit.ActionLogout)).To(gomega.BeEmpty())
		})
	})
})

func withCookie(id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.DefaultCookieName, Value: id})
	return req
}
