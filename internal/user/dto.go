package user

import (
	"time"

	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/core/common/validation"
)

type StatusDTO struct {
	Status string `json:"status"`
}

func (d StatusDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("status", d.Status).Required().OneOf(StatusNames(), errors.ErrCodeInvalidStatus)
	return v.Validate()
}

type RolesDTO struct {
	Roles []string `json:"roles"`
}

func (d RolesDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("roles", d.Roles).Custom(func(value interface{}) *errors.AppError {
		roles, _ := value.([]string)
		if roles == nil {
			return errors.NewValidationFieldError("roles", "roles is required", errors.ErrCodeValidationFailed)
		}
		for _, r := range roles {
			if r == "" {
				return errors.NewValidationFieldError("roles", "role names must not be empty", errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return v.Validate()
}

// UserResponse is the account view returned by the user endpoints. Roles is always present.
type UserResponse struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name"`
	Phone               *string    `json:"phone,omitempty"`
	Status              Status     `json:"status"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	Roles               []string   `json:"roles"`
	CreatedAt           time.Time  `json:"created_at"`
}

func NewUserResponse(u *User) UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:                  u.ID,
		Email:               u.Email,
		FullName:            u.FullName,
		Phone:               u.Phone,
		Status:              u.Status,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
		Roles:               roles,
		CreatedAt:           u.CreatedAt,
	}
}
