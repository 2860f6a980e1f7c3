package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Levels accepted by the audit sink.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// AuditLog is one recorded gateway event, kept for merchant-facing history.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Title      string            `gorm:"type:text;not null"`
	Message    string            `gorm:"type:text;not null"`
	Level      string            `gorm:"type:text;not null"`
	ModuleName string            `gorm:"type:text"`
	ModuleID   snowflake.ID      `gorm:""`
	Context    datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Service is the audit-log sink consumed by the payment services.
type Service interface {
	RecordEvent(ctx context.Context, title, message, level string, logCtx map[string]any) error
}
