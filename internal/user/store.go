package user

import (
	"context"
	"time"
)

// Store is the credential store. It never writes audit entries; callers do.
type Store interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, fields NewUser) (int64, error)
	UpdateUser(ctx context.Context, id int64, fields Update) error

	IncrementFailedAttempts(ctx context.Context, id int64) (int, error)
	ResetFailedAttempts(ctx context.Context, id int64) error
	MarkLoggedIn(ctx context.Context, id int64, at time.Time) error
	SetStatus(ctx context.Context, id int64, status Status) error
	Unlock(ctx context.Context, id int64) error

	ListRolesForUser(ctx context.Context, id int64) ([]string, error)
	AssignRoles(ctx context.Context, id int64, roleIDs []int64) error
	EnsureRole(ctx context.Context, spec RoleSpec) (*Role, error)
	FindRoleByName(ctx context.Context, name string) (*Role, error)
}
