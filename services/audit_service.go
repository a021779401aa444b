package services

import (
	"context"
	"encoding/json"
	"time"

	"meu_perito_go/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// AuditContext identifies the caller of an audited mutation
type AuditContext struct {
	ActorID   string
	ActorRole string
	IPAddress string
	UserAgent string
}

// AuditEvent is one caller-side record of a docket mutation
type AuditEvent struct {
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	ResourceName string
	Description  string
	OldValues    interface{}
	NewValues    interface{}
}

// AuditRecorder receives audit events after a mutation has committed.
// Recording never fails the mutation itself.
type AuditRecorder interface {
	Record(ctx context.Context, actor AuditContext, event AuditEvent)
}

// GormAuditRecorder persists events to the audit_logs table
type GormAuditRecorder struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewGormAuditRecorder(db *gorm.DB, log zerolog.Logger) *GormAuditRecorder {
	return &GormAuditRecorder{db: db, log: log.With().Str("component", "audit").Logger()}
}

func (r *GormAuditRecorder) Record(ctx context.Context, actor AuditContext, event AuditEvent) {
	entry := buildAuditLog(actor, event)
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.log.Error().Err(err).
			Str("action", string(event.Action)).
			Str("resource_id", event.ResourceID).
			Msg("failed to create audit log")
	}
}

// History returns the audit trail of one resource, newest first
func (r *GormAuditRecorder) History(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// AuditLogFilters narrows List
type AuditLogFilters struct {
	ActorID      string
	ResourceType string
	Action       models.AuditAction
	DateFrom     time.Time
	DateTo       time.Time
}

// List returns one page of audit logs and the total matching count
func (r *GormAuditRecorder) List(ctx context.Context, filters AuditLogFilters, page, pageSize int) ([]models.AuditLog, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if !filters.DateFrom.IsZero() {
		query = query.Where("created_at >= ?", filters.DateFrom)
	}
	if !filters.DateTo.IsZero() {
		query = query.Where("created_at <= ?", filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	return logs, total, err
}

// LogAuditRecorder writes events to the structured log only. Used by the
// memory and redis backends, which have no relational store.
type LogAuditRecorder struct {
	log zerolog.Logger
}

func NewLogAuditRecorder(log zerolog.Logger) *LogAuditRecorder {
	return &LogAuditRecorder{log: log.With().Str("component", "audit").Logger()}
}

func (r *LogAuditRecorder) Record(ctx context.Context, actor AuditContext, event AuditEvent) {
	entry := buildAuditLog(actor, event)
	r.log.Info().
		Str("actor_id", entry.ActorID).
		Str("actor_role", entry.ActorRole).
		Str("action", string(entry.Action)).
		Str("resource_type", entry.ResourceType).
		Str("resource_id", entry.ResourceID).
		Str("resource_name", entry.ResourceName).
		Str("old", entry.OldValues).
		Str("new", entry.NewValues).
		Msg(entry.Description)
}

func buildAuditLog(actor AuditContext, event AuditEvent) models.AuditLog {
	return models.AuditLog{
		ActorID:      actor.ActorID,
		ActorRole:    actor.ActorRole,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		ResourceName: event.ResourceName,
		Action:       event.Action,
		Description:  event.Description,
		OldValues:    marshalAuditValues(event.OldValues),
		NewValues:    marshalAuditValues(event.NewValues),
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	}
}

func marshalAuditValues(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
