package auth

import (
	"context"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	"github.com/frahmantamala/hospital-auth/internal/lockout"
	"github.com/frahmantamala/hospital-auth/internal/session"
	"github.com/frahmantamala/hospital-auth/internal/user"
)

// AuditRecorder is satisfied by *audit.Logger.
type AuditRecorder interface {
	Record(ctx context.Context, action audit.Action, metadata audit.Metadata, opts ...audit.Option)
}

type LoginResult struct {
	User           *user.User
	Outcome        lockout.Outcome
	FailedAttempts int
	Locked         bool
}

type RegisterResult struct {
	User     *user.User
	LoggedIn bool
}

// SessionUser is what the session endpoints expose about the signed-in principal.
type SessionUser struct {
	ID       int64    `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Roles    []string `json:"roles"`
}

func SessionUserFrom(sess *session.Handle) *SessionUser {
	id, ok := sess.CurrentUserID()
	if !ok {
		return nil
	}
	roles := sess.CurrentRoles()
	if roles == nil {
		roles = []string{}
	}
	return &SessionUser{
		ID:       id,
		Email:    sess.CurrentEmail(),
		FullName: sess.CurrentFullName(),
		Roles:    roles,
	}
}
