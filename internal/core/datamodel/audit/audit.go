package audit

import "time"

// AuditLog rows are insert-only. The db tags serve the sqlx read path.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey" db:"id"`
	UserID    *int64    `gorm:"column:user_id;index" db:"user_id"`
	Action    string    `gorm:"column:action;not null;index" db:"action"`
	Metadata  *string   `gorm:"column:metadata" db:"metadata"`
	IPAddress *string   `gorm:"column:ip_address" db:"ip_address"`
	UserAgent *string   `gorm:"column:user_agent" db:"user_agent"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" db:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
