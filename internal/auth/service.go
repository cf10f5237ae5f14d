package auth

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/lockout"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/user"
)

// Service runs the login, registration and logout flows.
type Service struct {
	users   user.Store
	policy  *lockout.Policy
	hasher  PasswordHasher
	audit   AuditRecorder
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(users user.Store, hasher PasswordHasher, recorder AuditRecorder, maxAttempts int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		policy: lockout.NewPolicy(maxAttempts, hasher),
		hasher: hasher,
		audit:  recorder,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// Login authenticates email and password and, on success, regenerates sess as an
// authenticated session. Unknown emails and wrong passwords fail with the same error.
func (s *Service) Login(ctx context.Context, sess *session.Handle, email, password string) (*LoginResult, error) {
	if appErr := (LoginDTO{Email: email, Password: password}).Validate(); appErr != nil {
		return nil, appErr
	}
	email = user.NormalizeEmail(email)

	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "login: credential lookup failed", "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}

	outcome := s.policy.Evaluate(u, password)
	s.metrics.loginOutcome(outcome)
	result := &LoginResult{User: u, Outcome: outcome}

	switch outcome {
	case lockout.UserNotFound:
		s.audit.Record(ctx, audit.ActionLoginFail, audit.Metadata{
			"email":  email,
			"reason": outcome.String(),
		}, audit.WithAnonymous())
		return result, errors.ErrInvalidCredentials

	case lockout.AccountLocked, lockout.AccountInactive:
		result.FailedAttempts = u.FailedLoginAttempts
		result.Locked = outcome == lockout.AccountLocked
		s.audit.Record(ctx, audit.ActionLoginFail, audit.Metadata{
			"user_id": u.ID,
			"email":   email,
			"reason":  outcome.String(),
		}, audit.WithUserID(u.ID))
		if result.Locked {
			return result, errors.ErrAccountLocked
		}
		return result, errors.ErrAccountInactive

	case lockout.WrongCredential:
		count, err := s.users.IncrementFailedAttempts(ctx, u.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "login: failed to record failed attempt", "user_id", u.ID, "error", err)
			return nil, errors.ErrPersistenceUnavailable.WithCause(err)
		}
		result.FailedAttempts = count

		if s.policy.ShouldLock(count) {
			if err := s.users.SetStatus(ctx, u.ID, user.StatusLocked); err != nil {
				s.logger.ErrorContext(ctx, "login: failed to lock account", "user_id", u.ID, "error", err)
				return nil, errors.ErrPersistenceUnavailable.WithCause(err)
			}
			result.Locked = true
			u.Status = user.StatusLocked
			s.metrics.lockedOut()
		}
		u.FailedLoginAttempts = count

		s.audit.Record(ctx, audit.ActionLoginFail, audit.Metadata{
			"user_id":         u.ID,
			"email":           email,
			"reason":          outcome.String(),
			"failed_attempts": count,
			"locked":          result.Locked,
		}, audit.WithUserID(u.ID))

		if result.Locked {
			return result, errors.ErrAccountLockedNow
		}
		return result, errors.ErrInvalidCredentials
	}

	roles, err := s.users.ListRolesForUser(ctx, u.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "login: failed to load roles", "user_id", u.ID, "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}

	now := s.now()
	if err := s.users.MarkLoggedIn(ctx, u.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "login: failed to stamp login", "user_id", u.ID, "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}
	u.FailedLoginAttempts = 0
	u.LastLoginAt = &now
	u.Roles = roles

	if sess == nil {
		return nil, errors.NewInternalError("Failed to start session", stdErrors.New("no session bound to request"))
	}
	if err := sess.Create(session.Principal{
		UserID:   u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Roles:    roles,
	}); err != nil {
		return nil, errors.NewInternalError("Failed to start session", err)
	}

	s.audit.Record(ctx, audit.ActionLoginSuccess, audit.Metadata{
		"user_id": u.ID,
		"email":   u.Email,
		"roles":   roles,
	}, audit.WithUserID(u.ID))

	s.logger.InfoContext(ctx, "user logged in", "user_id", u.ID)
	return result, nil
}

// Register creates a patient account and then logs it in. The account is kept when
// the follow-up login fails; RegisterResult.LoggedIn reports which happened.
func (s *Service) Register(ctx context.Context, sess *session.Handle, dto RegisterDTO) (*RegisterResult, error) {
	dto.FullName = strings.TrimSpace(dto.FullName)
	dto.Email = strings.TrimSpace(dto.Email)
	dto.Phone = strings.TrimSpace(dto.Phone)
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}
	email := user.NormalizeEmail(dto.Email)

	existing, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		s.logger.ErrorContext(ctx, "register: email lookup failed", "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}
	if existing != nil {
		return nil, errors.ErrDuplicateEmail
	}

	spec, _ := user.DefaultRoleSpec(user.RolePatient)
	role, err := s.users.EnsureRole(ctx, spec)
	if err != nil {
		s.logger.ErrorContext(ctx, "register: failed to ensure patient role", "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}

	credential, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, errors.NewInternalError("Failed to secure credential", err)
	}

	fields := user.NewUser{
		Email:      email,
		Credential: credential,
		FullName:   dto.FullName,
		Status:     user.StatusActive,
		RoleIDs:    []int64{role.ID},
	}
	if dto.Phone != "" {
		phone := dto.Phone
		fields.Phone = &phone
	}

	id, err := s.users.CreateUser(ctx, fields)
	if err != nil {
		if stdErrors.Is(err, user.ErrDuplicateEmail) {
			return nil, errors.ErrDuplicateEmail
		}
		s.logger.ErrorContext(ctx, "register: failed to create user", "error", err)
		return nil, errors.ErrPersistenceUnavailable.WithCause(err)
	}
	s.metrics.registered()

	s.audit.Record(ctx, audit.ActionPatientRegistered, audit.Metadata{
		"user_id": id,
		"email":   email,
	}, audit.WithUserID(id))

	created := &user.User{
		ID:       id,
		Email:    email,
		FullName: dto.FullName,
		Phone:    fields.Phone,
		Status:   user.StatusActive,
		Roles:    []string{role.Name},
	}

	login, err := s.Login(ctx, sess, email, dto.Password)
	if err != nil {
		s.logger.WarnContext(ctx, "register: auto-login failed", "user_id", id, "error", err)
		return &RegisterResult{User: created, LoggedIn: false}, nil
	}
	return &RegisterResult{User: login.User, LoggedIn: true}, nil
}

// Logout records LOGOUT when a user was signed in and always destroys the session.
func (s *Service) Logout(ctx context.Context, sess *session.Handle) {
	if sess == nil {
		return
	}
	if id, ok := sess.CurrentUserID(); ok {
		s.audit.Record(ctx, audit.ActionLogout, audit.Metadata{"user_id": id}, audit.WithUserID(id))
	}
	sess.Destroy()
}
