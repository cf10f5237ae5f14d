package user

import "time"

type User struct {
	ID                  int64      `gorm:"primaryKey"`
	Email               string     `gorm:"column:email;uniqueIndex;not null"`
	Credential          string     `gorm:"column:credential;not null"`
	Status              string     `gorm:"column:status;not null;default:active"`
	FailedLoginAttempts int        `gorm:"column:failed_login_attempts;not null;default:0"`
	LastLoginAt         *time.Time `gorm:"column:last_login_at"`
	FullName            string     `gorm:"column:full_name;not null"`
	Phone               *string    `gorm:"column:phone"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	DisplayName string    `gorm:"column:display_name;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Role) TableName() string {
	return "roles"
}

type UserRole struct {
	UserID    int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	RoleID    int64     `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
