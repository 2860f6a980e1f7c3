package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/spf13/cast"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

// RecordEvent persists an audit entry. Audit failures are logged and
// swallowed; they never abort the payment flow that produced them.
func (s *Service) RecordEvent(ctx context.Context, title, message, level string, logCtx map[string]any) error {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case domain.LevelInfo, domain.LevelWarning, domain.LevelError:
	default:
		level = domain.LevelInfo
	}

	entry := domain.AuditLog{
		ID:        s.genID.Generate(),
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		Level:     level,
		Context:   datatypes.JSONMap(logCtx),
		CreatedAt: time.Now().UTC(),
	}
	if logCtx != nil {
		entry.ModuleName = cast.ToString(logCtx["module_name"])
		entry.ModuleID = snowflake.ID(cast.ToInt64(logCtx["module_id"]))
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("title", entry.Title),
			zap.Error(err),
		)
		return nil
	}
	return nil
}
