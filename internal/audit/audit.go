package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	auditDatamodel "github.com/frahmantamala/hospital-auth/internal/core/datamodel/audit"
)

type Action string

const (
	ActionLoginSuccess      Action = "LOGIN_SUCCESS"
	ActionLoginFail         Action = "LOGIN_FAIL"
	ActionLogout            Action = "LOGOUT"
	ActionAccessDenied      Action = "ACCESS_DENIED"
	ActionCSRFRejected      Action = "CSRF_REJECTED"
	ActionUserCreated       Action = "USER_CREATED"
	ActionUserUpdated       Action = "USER_UPDATED"
	ActionUserDeleted       Action = "USER_DELETED"
	ActionUserStatusChanged Action = "USER_STATUS_CHANGED"
	ActionUserUnlocked      Action = "USER_UNLOCKED"
	ActionPatientRegistered Action = "PATIENT_REGISTERED"
)

// Metadata is the schema-less payload of an entry. Its shape depends on the action.
type Metadata map[string]any

// Entry is write-once.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	Action    Action    `json:"action"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeMetadata serializes metadata as a JSON object. Empty metadata encodes to "".
func EncodeMetadata(m Metadata) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode audit metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata is the inverse of EncodeMetadata. Numbers decode as json.Number
// so re-encoding reproduces the original text.
func DecodeMetadata(raw string) (Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var m Metadata
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode audit metadata: %w", err)
	}
	return m, nil
}

type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

type Filter struct {
	Action Action
	UserID *int64
	Limit  int
	Offset int
}

type Reader interface {
	// List returns entries newest first together with the total number matching the filter.
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
}

func ToDataModel(e Entry) (*auditDatamodel.AuditLog, error) {
	row := &auditDatamodel.AuditLog{
		UserID:    e.UserID,
		Action:    string(e.Action),
		CreatedAt: e.CreatedAt,
	}
	meta, err := EncodeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}
	if meta != "" {
		row.Metadata = &meta
	}
	if e.IPAddress != "" {
		ip := e.IPAddress
		row.IPAddress = &ip
	}
	if e.UserAgent != "" {
		ua := e.UserAgent
		row.UserAgent = &ua
	}
	return row, nil
}

func FromDataModel(row *auditDatamodel.AuditLog) (Entry, error) {
	e := Entry{
		ID:        row.ID,
		UserID:    row.UserID,
		Action:    Action(row.Action),
		CreatedAt: row.CreatedAt,
	}
	if row.Metadata != nil {
		meta, err := DecodeMetadata(*row.Metadata)
		if err != nil {
			return Entry{}, err
		}
		e.Metadata = meta
	}
	if row.IPAddress != nil {
		e.IPAddress = *row.IPAddress
	}
	if row.UserAgent != nil {
		e.UserAgent = *row.UserAgent
	}
	return e, nil
}
