package user

import (
	"errors"
	"strings"
	"time"

	userDatamodel "github.com/frahmantamala/hospital-auth/internal/core/datamodel/user"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusLocked   Status = "locked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusLocked:
		return true
	}
	return false
}

func StatusNames() []string {
	return []string{string(StatusActive), string(StatusInactive), string(StatusLocked)}
}

const (
	RoleAdmin         = "admin"
	RoleReceptionist  = "receptionist"
	RoleDoctor        = "doctor"
	RoleLabTechnician = "lab_technician"
	RolePharmacist    = "pharmacist"
	RolePatient       = "patient"
)

// User is the credential store's view of an account. Roles is only filled by callers that load it.
type User struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	Credential          string     `json:"-"`
	Status              Status     `json:"status"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
	FullName            string     `json:"full_name"`
	Phone               *string    `json:"phone,omitempty"`
	Roles               []string   `json:"roles,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) IsLocked() bool {
	return u.Status == StatusLocked
}

func (u *User) IsActiveUser() bool {
	return u.Status == StatusActive
}

type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
}

type RoleSpec struct {
	Name        string
	DisplayName string
	Description string
}

// DefaultRoles is the hospital role catalogue.
var DefaultRoles = []RoleSpec{
	{RoleAdmin, "Administrator", "Full system access: users, roles and audit logs"},
	{RoleReceptionist, "Receptionist", "Patient registration, appointments and billing"},
	{RoleDoctor, "Doctor", "Appointments, prescriptions and medical records"},
	{RoleLabTechnician, "Lab Technician", "Laboratory tests and results"},
	{RolePharmacist, "Pharmacist", "Prescriptions and pharmacy inventory"},
	{RolePatient, "Patient", "Registered patients - can view appointments, prescriptions, and medical records"},
}

func DefaultRoleSpec(name string) (RoleSpec, bool) {
	for _, r := range DefaultRoles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleSpec{}, false
}

type NewUser struct {
	Email      string
	Credential string
	FullName   string
	Phone      *string
	Status     Status
	RoleIDs    []int64
}

// Update is a partial update; nil fields are left unchanged.
type Update struct {
	Email      *string
	Credential *string
	FullName   *string
	Phone      *string
	Status     *Status
}

func (u Update) IsEmpty() bool {
	return u.Email == nil && u.Credential == nil && u.FullName == nil && u.Phone == nil && u.Status == nil
}

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrUnknownRole    = errors.New("unknown role")
	ErrInvalidStatus  = errors.New("invalid user status")
)

// NormalizeEmail is applied on every write and lookup, which is what makes email comparison case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:                  u.ID,
		Email:               u.Email,
		Credential:          u.Credential,
		Status:              Status(u.Status),
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
		FullName:            u.FullName,
		Phone:               u.Phone,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:                  u.ID,
		Email:               u.Email,
		Credential:          u.Credential,
		Status:              string(u.Status),
		FailedLoginAttempts: u.FailedLoginAttempts,
		LastLoginAt:         u.LastLoginAt,
		FullName:            u.FullName,
		Phone:               u.Phone,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func RoleFromDataModel(r *userDatamodel.Role) *Role {
	return &Role{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
	}
}
