package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/frahmantamala/hospital-auth/internal/audit"
	auditDatamodel "github.com/frahmantamala/hospital-auth/internal/core/datamodel/audit"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Writer appends audit entries through gorm.
type Writer struct {
	db *gorm.DB
}

var _ audit.Writer = (*Writer)(nil)

func NewWriter(db *gorm.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) Write(ctx context.Context, entry audit.Entry) error {
	row, err := audit.ToDataModel(entry)
	if err != nil {
		return err
	}
	if err := w.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Reader lists audit entries with plain SQL through sqlx.
type Reader struct {
	db *sqlx.DB
}

var _ audit.Reader = (*Reader)(nil)

func NewReader(db *sqlx.DB) *Reader {
	return &Reader{db: db}
}

const selectColumns = "id, user_id, action, metadata, ip_address, user_agent, created_at"

func (r *Reader) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		conds []string
		args  []interface{}
	)
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := r.db.Rebind("SELECT COUNT(*) FROM audit_logs" + where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	if total == 0 {
		return []audit.Entry{}, 0, nil
	}

	listQuery := r.db.Rebind("SELECT " + selectColumns + " FROM audit_logs" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	var rows []auditDatamodel.AuditLog
	if err := r.db.SelectContext(ctx, &rows, listQuery, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for i := range rows {
		e, err := audit.FromDataModel(&rows[i])
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, nil
}
