package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/technosurge/leadflow/config"
	"github.com/technosurge/leadflow/llm/retry"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗄️ 数据库连接池
// =============================================================================

// ErrPoolClosed 连接池已关闭
var ErrPoolClosed = errors.New("pool is closed")

// StatsRecorder 接收周期性的连接池统计，metrics.Collector 实现了它
type StatsRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

// PoolManager 持有 GORM 实例与底层 sql.DB，负责连接池参数、后台探活与事务
type PoolManager struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	config   PoolConfig
	logger   *zap.Logger
	recorder StatsRecorder

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns        int
	MaxOpenConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	HealthCheckInterval time.Duration
	// Name 作为指标 label，一般是驱动名
	Name string
}

// DefaultPoolConfig 返回默认连接池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        20,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		Name:                "default",
	}
}

// PoolConfigFrom 用应用配置覆盖默认值
func PoolConfigFrom(dc config.DatabaseConfig) PoolConfig {
	pc := DefaultPoolConfig()
	pc.Name = dc.Driver
	if dc.MaxIdleConns > 0 {
		pc.MaxIdleConns = dc.MaxIdleConns
	}
	if dc.MaxOpenConns > 0 {
		pc.MaxOpenConns = dc.MaxOpenConns
	}
	if dc.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = dc.ConnMaxLifetime
	}
	// sqlite 单文件，多连接写入只会带来 SQLITE_BUSY
	if dc.Driver == "sqlite" {
		pc.MaxOpenConns = 1
		pc.MaxIdleConns = 1
	}
	return pc
}

// Dialector 按驱动名选择 GORM dialector，sqlite 相对路径以 $LEADFLOW_HOME 为根
func Dialector(dc config.DatabaseConfig) (gorm.Dialector, error) {
	dc = dc.ResolveHome(config.HomeDir())
	dsn := dc.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("unsupported database driver %q", dc.Driver)
	}
	switch dc.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// Open 打开数据库并包装成 PoolManager
func Open(dc config.DatabaseConfig, logger *zap.Logger, opts ...Option) (*PoolManager, error) {
	dialector, err := Dialector(dc)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dc.Driver, err)
	}
	return NewPoolManager(db, PoolConfigFrom(dc), logger, opts...)
}

// Option 配置 PoolManager
type Option func(*PoolManager)

// WithStatsRecorder 每次健康检查后上报连接数
func WithStatsRecorder(r StatsRecorder) Option {
	return func(pm *PoolManager) { pm.recorder = r }
}

// NewPoolManager 包装已打开的 GORM 实例并应用连接池参数
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger, opts ...Option) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pm := &PoolManager{
		db:     db,
		sqlDB:  sqlDB,
		config: cfg,
		logger: logger.With(zap.String("component", "db_pool"), zap.String("database", cfg.Name)),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pm)
	}

	if cfg.HealthCheckInterval > 0 {
		pm.wg.Add(1)
		go pm.healthCheckLoop()
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return pm, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// DB 返回 GORM 实例
func (pm *PoolManager) DB() *gorm.DB {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.db
}

// Ping 探活
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Stats 返回 database/sql 原始统计
func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Close 停止健康检查并关闭连接池，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	close(pm.stop)
	pm.mu.Unlock()

	pm.wg.Wait()
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (pm *PoolManager) healthCheckLoop() {
	defer pm.wg.Done()
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.checkOnce()
		}
	}
}

func (pm *PoolManager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pm.Ping(ctx); err != nil {
		if !errors.Is(err, ErrPoolClosed) {
			pm.logger.Error("database health check failed", zap.Error(err))
		}
		return
	}
	stats := pm.Stats()
	if pm.recorder != nil {
		pm.recorder.RecordDBConnections(pm.config.Name, stats.OpenConnections, stats.Idle)
	}
	pm.logger.Debug("database health check passed",
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
	)
}

// =============================================================================
// 🔄 事务
// =============================================================================

// TransactionFunc 事务回调
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction 在单个事务中执行 fn
func (pm *PoolManager) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	pm.mu.RLock()
	if pm.closed {
		pm.mu.RUnlock()
		return ErrPoolClosed
	}
	db := pm.db
	pm.mu.RUnlock()

	return db.WithContext(ctx).Transaction(fn)
}

// WithTransactionRetry 对死锁、序列化失败、断连等瞬时错误按指数退避重试整个事务
func (pm *PoolManager) WithTransactionRetry(ctx context.Context, maxRetries int, fn TransactionFunc) error {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = maxRetries
	policy.InitialDelay = 100 * time.Millisecond
	policy.MaxDelay = 2 * time.Second
	policy.ShouldRetry = IsRetryableError
	return retry.New(policy, pm.logger).Do(ctx, func(ctx context.Context) error {
		return pm.WithTransaction(ctx, fn)
	})
}

// IsRetryableError 判断数据库错误是否属于可重试的瞬时错误
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, ErrPoolClosed) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var retryableMarkers = []string{
	"deadlock",
	"serialization failure",
	"40001",
	"connection reset",
	"connection refused",
	"broken pipe",
	"lock timeout",
	"lock wait timeout",
	"bad connection",
	"database is locked",
}
