package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/audit"
)

// AuditRecorder is satisfied by *audit.Logger.
type AuditRecorder interface {
	Record(ctx context.Context, action audit.Action, metadata audit.Metadata, opts ...audit.Option)
}

// Service holds the account operations available to signed-in users and administrators.
type Service struct {
	store  Store
	audit  AuditRecorder
	logger *slog.Logger
}

func NewService(store Store, recorder AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		audit:  recorder,
		logger: logger,
	}
}

// GetByID returns the user with its roles loaded.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "get user", err)
	}
	if u == nil {
		return nil, apperrors.ErrUserNotFound
	}

	roles, err := s.store.ListRolesForUser(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "list roles", err)
	}
	u.Roles = roles
	return u, nil
}

// Unlock reactivates a locked account and clears its failure counter.
func (s *Service) Unlock(ctx context.Context, actorID, id int64) (*User, error) {
	if err := s.store.Unlock(ctx, id); err != nil {
		return nil, s.storeError(ctx, "unlock user", err)
	}

	s.audit.Record(ctx, audit.ActionUserUnlocked, audit.Metadata{
		"unlocked_by": actorID,
		"user_id":     id,
	}, audit.WithUserID(actorID))
	s.logger.InfoContext(ctx, "user unlocked", "user_id", id, "unlocked_by", actorID)

	return s.GetByID(ctx, id)
}

// ChangeStatus sets the account status. Moving an account to active goes through Unlock
// so a previously locked account does not relock on its next mistake.
func (s *Service) ChangeStatus(ctx context.Context, actorID, id int64, status Status) (*User, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationFieldError("status", fmt.Sprintf("status must be one of: %v", StatusNames()), apperrors.ErrCodeInvalidStatus)
	}

	var err error
	if status == StatusActive {
		err = s.store.Unlock(ctx, id)
	} else {
		err = s.store.SetStatus(ctx, id, status)
	}
	if err != nil {
		return nil, s.storeError(ctx, "change status", err)
	}

	s.audit.Record(ctx, audit.ActionUserStatusChanged, audit.Metadata{
		"user_id":    id,
		"new_status": string(status),
		"changed_by": actorID,
	}, audit.WithUserID(actorID))

	return s.GetByID(ctx, id)
}

// ReplaceRoles resolves role names and swaps the user's full role set in one step.
func (s *Service) ReplaceRoles(ctx context.Context, actorID, id int64, names []string) (*User, error) {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		role, err := s.store.FindRoleByName(ctx, name)
		if err != nil {
			return nil, s.storeError(ctx, "find role", err)
		}
		if role == nil {
			return nil, apperrors.NewValidationFieldError("roles", fmt.Sprintf("Unknown role: %s", name), apperrors.ErrCodeValidationFailed)
		}
		ids = append(ids, role.ID)
	}

	if err := s.store.AssignRoles(ctx, id, ids); err != nil {
		return nil, s.storeError(ctx, "assign roles", err)
	}

	u, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.ActionUserUpdated, audit.Metadata{
		"user_id":    id,
		"roles":      u.Roles,
		"updated_by": actorID,
	}, audit.WithUserID(actorID))
	return u, nil
}

func (s *Service) storeError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperrors.ErrUserNotFound
	case errors.Is(err, ErrDuplicateEmail):
		return apperrors.ErrDuplicateEmail
	case errors.Is(err, ErrUnknownRole):
		return apperrors.NewValidationFieldError("roles", "Unknown role", apperrors.ErrCodeValidationFailed)
	case errors.Is(err, ErrInvalidStatus):
		return apperrors.NewValidationFieldError("status", "Invalid status", apperrors.ErrCodeInvalidStatus)
	}
	s.logger.ErrorContext(ctx, op+" failed", "error", err)
	return apperrors.ErrPersistenceUnavailable.WithCause(err)
}
