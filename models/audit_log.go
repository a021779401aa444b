package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditAction represents the type of docket operation performed
type AuditAction string

const (
	AuditActionCreate        AuditAction = "CREATE"
	AuditActionUpdate        AuditAction = "UPDATE"
	AuditActionDelete        AuditAction = "DELETE"
	AuditActionStatusChange  AuditAction = "STATUS_CHANGE"
	AuditActionConfirm       AuditAction = "CONFIRM"        // Extracted values accepted by a human
	AuditActionExtract       AuditAction = "EXTRACT"        // Source document processed
	AuditActionExport        AuditAction = "EXPORT"         // Docket spreadsheet downloaded
	AuditActionAbsenceNotice AuditAction = "ABSENCE_NOTICE" // Case entered the absent state
)

// Audited resource types
const (
	AuditResourceSession  = "Session"
	AuditResourceCase     = "CaseRecord"
	AuditResourceLocation = "Location"
	AuditResourceDocument = "Document"
)

// AuditLog represents an immutable record of a docket mutation
type AuditLog struct {
	ID        string    `gorm:"type:uuid;primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_audit_created_at" json:"created_at"`

	// Actor identification, supplied by the caller
	ActorID   string `gorm:"not null;index:idx_audit_actor" json:"actor_id"`
	ActorRole string `json:"actor_role,omitempty"`

	// Target resource
	ResourceType string `gorm:"not null;index:idx_audit_resource" json:"resource_type"`
	ResourceID   string `gorm:"not null;index:idx_audit_resource" json:"resource_id"`
	ResourceName string `json:"resource_name,omitempty"` // Case number or session key

	Action      AuditAction `gorm:"not null;index:idx_audit_action" json:"action"`
	Description string      `gorm:"type:text" json:"description,omitempty"`

	OldValues string `gorm:"type:text" json:"old_values,omitempty"` // JSON encoded
	NewValues string `gorm:"type:text" json:"new_values,omitempty"` // JSON encoded

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ErrAuditImmutable is returned when something tries to rewrite the trail
var ErrAuditImmutable = errors.New("audit entries are append-only")

// AuditChange is one field that differs between OldValues and NewValues
type AuditChange struct {
	Field string
	Old   interface{}
	New   interface{}
}

func decodeSnapshot(raw string) map[string]interface{} {
	values := map[string]interface{}{}
	if raw != "" {
		// a snapshot that is not an object diffs as empty
		_ = json.Unmarshal([]byte(raw), &values)
	}
	return values
}

// Changes lists the fields whose value differs between the two snapshots,
// ordered by field name.
func (a *AuditLog) Changes() []AuditChange {
	before, after := decodeSnapshot(a.OldValues), decodeSnapshot(a.NewValues)

	fields := make([]string, 0, len(before)+len(after))
	for field := range before {
		fields = append(fields, field)
	}
	for field := range after {
		if _, seen := before[field]; !seen {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var changes []AuditChange
	for _, field := range fields {
		if reflect.DeepEqual(before[field], after[field]) {
			continue
		}
		changes = append(changes, AuditChange{Field: field, Old: before[field], New: after[field]})
	}
	return changes
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error { return ErrAuditImmutable }

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error { return ErrAuditImmutable }

func (AuditLog) TableName() string {
	return "audit_logs"
}
