package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	userDatamodel "github.com/frahmantamala/hospital-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/hospital-auth/internal/user"
	"gorm.io/gorm"
)

var _ user.Store = (*UserRepository)(nil)

// UserRepository is the gorm-backed credential store. All statements are parameterized.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	var row userDatamodel.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", user.NormalizeEmail(email)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return user.FromDataModel(&row), nil
}

func (r *UserRepository) FindUserByID(ctx context.Context, id int64) (*user.User, error) {
	var row userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return user.FromDataModel(&row), nil
}

// CreateUser inserts the user and its role assignments in one transaction.
func (r *UserRepository) CreateUser(ctx context.Context, fields user.NewUser) (int64, error) {
	status := fields.Status
	if status == "" {
		status = user.StatusActive
	}
	if !status.Valid() {
		return 0, user.ErrInvalidStatus
	}

	row := userDatamodel.User{
		Email:      user.NormalizeEmail(fields.Email),
		Credential: fields.Credential,
		Status:     string(status),
		FullName:   fields.FullName,
		Phone:      fields.Phone,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := emailTaken(tx, row.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return user.ErrDuplicateEmail
		}

		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return user.ErrDuplicateEmail
			}
			return err
		}

		return insertRoles(tx, row.ID, fields.RoleIDs)
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) || errors.Is(err, user.ErrUnknownRole) {
			return 0, err
		}
		return 0, fmt.Errorf("create user: %w", err)
	}

	return row.ID, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, id int64, fields user.Update) error {
	if fields.IsEmpty() {
		u, err := r.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		if u == nil {
			return user.ErrNotFound
		}
		return nil
	}

	changes := map[string]interface{}{}
	if fields.FullName != nil {
		changes["full_name"] = *fields.FullName
	}
	if fields.Phone != nil {
		changes["phone"] = *fields.Phone
	}
	if fields.Credential != nil {
		changes["credential"] = *fields.Credential
	}
	if fields.Status != nil {
		if !fields.Status.Valid() {
			return user.ErrInvalidStatus
		}
		changes["status"] = string(*fields.Status)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if fields.Email != nil {
			email := user.NormalizeEmail(*fields.Email)
			taken, err := emailTaken(tx, email, id)
			if err != nil {
				return err
			}
			if taken {
				return user.ErrDuplicateEmail
			}
			changes["email"] = email
		}

		res := tx.Model(&userDatamodel.User{}).Where("id = ?", id).Updates(changes)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return user.ErrDuplicateEmail
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return user.ErrNotFound
		}
		return nil
	})
	return wrap("update user", err)
}

// IncrementFailedAttempts increments in SQL rather than read-modify-write, so concurrent
// failures against the same account are never lost.
func (r *UserRepository) IncrementFailedAttempts(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userDatamodel.User{}).
			Where("id = ?", id).
			Update("failed_login_attempts", gorm.Expr("failed_login_attempts + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return user.ErrNotFound
		}
		return tx.Raw("SELECT failed_login_attempts FROM users WHERE id = ?", id).Row().Scan(&count)
	})
	if err != nil {
		return 0, wrap("increment failed attempts", err)
	}
	return count, nil
}

func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id int64) error {
	return r.updateColumns(ctx, "reset failed attempts", id, map[string]interface{}{
		"failed_login_attempts": 0,
	})
}

func (r *UserRepository) MarkLoggedIn(ctx context.Context, id int64, at time.Time) error {
	return r.updateColumns(ctx, "mark logged in", id, map[string]interface{}{
		"failed_login_attempts": 0,
		"last_login_at":         at,
	})
}

func (r *UserRepository) SetStatus(ctx context.Context, id int64, status user.Status) error {
	if !status.Valid() {
		return user.ErrInvalidStatus
	}
	return r.updateColumns(ctx, "set status", id, map[string]interface{}{
		"status": string(status),
	})
}

func (r *UserRepository) Unlock(ctx context.Context, id int64) error {
	return r.updateColumns(ctx, "unlock user", id, map[string]interface{}{
		"status":                string(user.StatusActive),
		"failed_login_attempts": 0,
	})
}

func (r *UserRepository) ListRolesForUser(ctx context.Context, id int64) ([]string, error) {
	query := `SELECT r.name
	          FROM user_roles ur
	          JOIN roles r ON r.id = ur.role_id
	          WHERE ur.user_id = ?
	          ORDER BY ur.created_at ASC, r.id ASC`

	rows, err := r.db.WithContext(ctx).Raw(query, id).Rows()
	if err != nil {
		return nil, fmt.Errorf("list roles for user: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list roles for user: %w", err)
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

// AssignRoles replaces the full role set. On any failure the previous assignment is kept.
func (r *UserRepository) AssignRoles(ctx context.Context, id int64, roleIDs []int64) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userDatamodel.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return user.ErrNotFound
		}

		if err := tx.Where("user_id = ?", id).Delete(&userDatamodel.UserRole{}).Error; err != nil {
			return err
		}
		return insertRoles(tx, id, roleIDs)
	})
	return wrap("assign roles", err)
}

func (r *UserRepository) FindRoleByName(ctx context.Context, name string) (*user.Role, error) {
	var row userDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find role by name: %w", err)
	}
	return user.RoleFromDataModel(&row), nil
}

func (r *UserRepository) EnsureRole(ctx context.Context, spec user.RoleSpec) (*user.Role, error) {
	role, err := r.FindRoleByName(ctx, spec.Name)
	if err != nil || role != nil {
		return role, err
	}

	displayName := spec.DisplayName
	if displayName == "" {
		displayName = spec.Name
	}
	row := userDatamodel.Role{
		Name:        spec.Name,
		DisplayName: displayName,
		Description: spec.Description,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// created concurrently
			return r.FindRoleByName(ctx, spec.Name)
		}
		return nil, fmt.Errorf("create role %s: %w", spec.Name, err)
	}
	return user.RoleFromDataModel(&row), nil
}

func (r *UserRepository) updateColumns(ctx context.Context, op string, id int64, changes map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return user.ErrNotFound
	}
	return nil
}

func emailTaken(tx *gorm.DB, email string, exceptID int64) (bool, error) {
	var count int64
	q := tx.Model(&userDatamodel.User{}).Where("LOWER(email) = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func insertRoles(tx *gorm.DB, userID int64, roleIDs []int64) error {
	ids := dedupe(roleIDs)
	if len(ids) == 0 {
		return nil
	}

	var found int64
	if err := tx.Model(&userDatamodel.Role{}).Where("id IN ?", ids).Count(&found).Error; err != nil {
		return err
	}
	if int(found) != len(ids) {
		return user.ErrUnknownRole
	}

	rows := make([]userDatamodel.UserRole, 0, len(ids))
	for _, roleID := range ids {
		rows = append(rows, userDatamodel.UserRole{UserID: userID, RoleID: roleID})
	}
	return tx.Create(&rows).Error
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, user.ErrDuplicateEmail),
		errors.Is(err, user.ErrUnknownRole),
		errors.Is(err, user.ErrInvalidStatus):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
