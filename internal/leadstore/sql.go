package leadstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// leadRecord 对应 migrations 中的 leads 表
type leadRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:320;not null;index:idx_leads_email"`
	Summary   string `gorm:"type:text;not null"`
	Status    string `gorm:"size:32;not null;index:idx_leads_status"`
	SessionID string `gorm:"size:128;not null;index:idx_leads_session_id"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (leadRecord) TableName() string { return "leads" }

func recordFromLead(l types.Lead) leadRecord {
	return leadRecord{
		ID:        l.ID,
		Name:      l.Name,
		Email:     l.Email,
		Summary:   l.Summary,
		Status:    string(l.Status),
		SessionID: l.SessionID,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (r leadRecord) toLead() types.Lead {
	return types.Lead{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Summary:   r.Summary,
		Status:    types.LeadStatus(r.Status),
		SessionID: r.SessionID,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// SQLStore 基于 gorm 的线索存储，表结构由 internal/migration 管理
type SQLStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLStore 创建 SQL 存储
func NewSQLStore(db *gorm.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		logger: logger.With(zap.String("component", "leadstore"), zap.String("backend", "database")),
	}
}

// Backend 实现 Store
func (s *SQLStore) Backend() string { return "database" }

// Append 插入线索，缺少 ID 时生成 UUID
func (s *SQLStore) Append(ctx context.Context, lead types.Lead) error {
	lead = lead.Normalize()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Summary == "" {
		lead.Summary = types.NoSummaryProvided
	}
	rec := recordFromLead(lead)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	s.logger.Info("lead saved", zap.String("lead_id", rec.ID), zap.String("email", rec.Email))
	return nil
}

func (s *SQLStore) first(ctx context.Context, email string) (*leadRecord, error) {
	var rec leadRecord
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Order("created_at ASC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lead by email: %w", err)
	}
	return &rec, nil
}

// FindByEmail 返回最早写入的匹配线索
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (*types.Lead, error) {
	rec, err := s.first(ctx, email)
	if err != nil {
		return nil, err
	}
	l := rec.toLead()
	return &l, nil
}

// UpdateStatus 只更新第一条匹配记录，与表格后端一致
func (s *SQLStore) UpdateStatus(ctx context.Context, email string, status types.LeadStatus) error {
	rec, err := s.first(ctx, email)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&leadRecord{}).
		Where("id = ?", rec.ID).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update lead status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List 按写入顺序返回全部线索
func (s *SQLStore) List(ctx context.Context) ([]types.Lead, error) {
	var recs []leadRecord
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := make([]types.Lead, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toLead())
	}
	return out, nil
}
