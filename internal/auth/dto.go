package auth

import (
	errors "github.com/frahmantamala/hospital-auth/internal"
	"github.com/frahmantamala/hospital-auth/internal/core/common/validation"
)

const MinPasswordLength = 8

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d LoginDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required()
	v.Field("password", d.Password).Required()
	return v.Validate()
}

type RegisterDTO struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (d RegisterDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("full_name", d.FullName).Required().MaxLength(100)
	v.Field("email", d.Email).Required().Email().MaxLength(100)
	v.Field("phone", d.Phone).MaxLength(20)
	v.Field("password", d.Password).Required().MinLength(MinPasswordLength, errors.ErrCodePasswordTooShort)
	v.Field("confirm_password", d.ConfirmPassword).Required().EqualTo(d.Password, "Passwords do not match", errors.ErrCodePasswordMismatch)
	return v.Validate()
}

type LoginResponse struct {
	User       *SessionUser `json:"user"`
	CSRFToken  string       `json:"csrf_token"`
	RedirectTo string       `json:"redirect_to"`
}

type LoginGateResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *SessionUser `json:"user,omitempty"`
	Flash         string       `json:"flash,omitempty"`
}

type RegisterResponse struct {
	User      *SessionUser `json:"user"`
	LoggedIn  bool         `json:"logged_in"`
	CSRFToken string       `json:"csrf_token,omitempty"`
	Message   string       `json:"message"`
}

type SessionResponse struct {
	User      *SessionUser `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}
