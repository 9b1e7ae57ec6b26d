// Package leadstore persists captured leads to Google Sheets or a SQL database.
package leadstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/internal/telemetry"
	"github.com/technosurge/leadflow/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound 没有匹配邮箱的线索
var ErrNotFound = errors.New("lead not found")

// Store 线索存储。按邮箱查找时取第一条匹配记录。
type Store interface {
	Append(ctx context.Context, lead types.Lead) error
	FindByEmail(ctx context.Context, email string) (*types.Lead, error)
	UpdateStatus(ctx context.Context, email string, status types.LeadStatus) error
	List(ctx context.Context) ([]types.Lead, error)
	// Backend 返回后端名，用于日志与指标
	Backend() string
}

// Open 按 lead_store.backend 创建存储；database 后端需要已打开的 gorm 实例
func Open(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger) (Store, error) {
	switch cfg.LeadStore.Backend {
	case "sheets":
		return NewSheetsStore(ctx, cfg.Sheets, logger)
	case "database", "":
		if db == nil {
			return nil, errors.New("database lead store requires an open database")
		}
		return NewSQLStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown lead store backend %q", cfg.LeadStore.Backend)
	}
}

// =============================================================================
// 📊 观测包装
// =============================================================================

// Recorder 接收存储操作指标，metrics.Collector 实现了它
type Recorder interface {
	RecordLeadStoreOp(backend, operation string, duration time.Duration)
	RecordLeadSaved(backend, status string)
}

type instrumented struct {
	next     Store
	recorder Recorder
}

// Instrument 为每个操作加上 span 与耗时指标
func Instrument(s Store, r Recorder) Store {
	return &instrumented{next: s, recorder: r}
}

func (i *instrumented) Backend() string { return i.next.Backend() }

func (i *instrumented) observe(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "leadstore."+op)
	span.SetAttributes(attribute.String("leadstore.backend", i.next.Backend()))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if i.recorder != nil {
		i.recorder.RecordLeadStoreOp(i.next.Backend(), op, time.Since(start))
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (i *instrumented) Append(ctx context.Context, lead types.Lead) error {
	err := i.observe(ctx, "append", func(ctx context.Context) error {
		return i.next.Append(ctx, lead)
	})
	if i.recorder != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		i.recorder.RecordLeadSaved(i.next.Backend(), status)
	}
	return err
}

func (i *instrumented) FindByEmail(ctx context.Context, email string) (*types.Lead, error) {
	var out *types.Lead
	err := i.observe(ctx, "find", func(ctx context.Context) error {
		var err error
		out, err = i.next.FindByEmail(ctx, email)
		return err
	})
	return out, err
}

func (i *instrumented) UpdateStatus(ctx context.Context, email string, status types.LeadStatus) error {
	return i.observe(ctx, "update_status", func(ctx context.Context) error {
		return i.next.UpdateStatus(ctx, email, status)
	})
}

func (i *instrumented) List(ctx context.Context) ([]types.Lead, error) {
	var out []types.Lead
	err := i.observe(ctx, "list", func(ctx context.Context) error {
		var err error
		out, err = i.next.List(ctx)
		return err
	})
	return out, err
}
