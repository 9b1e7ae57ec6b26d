package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect 支持的数据库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// sqlDriver 返回 database/sql 驱动名
func (d Dialect) sqlDriver() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

// ParseDialect 解析驱动名，接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// Status 单个迁移的状态
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Info 迁移总体状态
type Info struct {
	CurrentVersion uint
	Dirty          bool
	Total          int
	Applied        int
	Pending        int
}

// Config 迁移器配置
type Config struct {
	Dialect Dialect
	// DSN 是 database/sql 可直接打开的连接串
	DSN string
	// 迁移记录表，默认 schema_migrations
	TableName string
}

// Migrator 是 CLI 依赖的迁移操作集
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Steps(ctx context.Context, n int) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]Status, error)
	Info(ctx context.Context) (*Info, error)
	Close() error
}

// SQLMigrator 基于 golang-migrate 与内嵌 SQL 文件的 Migrator
type SQLMigrator struct {
	cfg     Config
	db      *sql.DB
	migrate *migrate.Migrate
}

var _ Migrator = (*SQLMigrator)(nil)

// New 打开数据库并准备迁移源
func New(cfg Config) (*SQLMigrator, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if _, err := ParseDialect(string(cfg.Dialect)); err != nil {
		return nil, err
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	db, err := sql.Open(cfg.Dialect.sqlDriver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := databaseDriver(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, sourceDir(cfg.Dialect))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return &SQLMigrator{cfg: cfg, db: db, migrate: m}, nil
}

func databaseDriver(cfg Config, db *sql.DB) (database.Driver, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.TableName})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: cfg.TableName})
	default:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: cfg.TableName})
	}
}

func sourceDir(d Dialect) string {
	return path.Join("migrations", string(d))
}

// =============================================================================
// 操作
// =============================================================================

// Up 应用所有待执行迁移，已是最新时不报错
func (m *SQLMigrator) Up(ctx context.Context) error {
	return ignoreNoChange(m.migrate.Up(), "up")
}

// Down 回滚最近一个迁移
func (m *SQLMigrator) Down(ctx context.Context) error {
	return ignoreNoChange(m.migrate.Steps(-1), "down")
}

// Steps 正数前进 n 步，负数回滚 n 步
func (m *SQLMigrator) Steps(ctx context.Context, n int) error {
	return ignoreNoChange(m.migrate.Steps(n), "steps")
}

// Force 直接设置版本号，用于清理 dirty 状态
func (m *SQLMigrator) Force(ctx context.Context, version int) error {
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本，未执行任何迁移时为 0
func (m *SQLMigrator) Version(ctx context.Context) (uint, bool, error) {
	v, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}

// Status 列出内嵌的全部迁移及其是否已应用
func (m *SQLMigrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := Available(m.cfg.Dialect)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(files))
	for _, f := range files {
		out = append(out, Status{
			Version: f.Version,
			Name:    f.Name,
			Applied: f.Version <= current,
			Dirty:   dirty && f.Version == current,
		})
	}
	return out, nil
}

// Info 汇总版本与待执行数量
func (m *SQLMigrator) Info(ctx context.Context) (*Info, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{CurrentVersion: current, Dirty: dirty, Total: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.Applied++
		}
	}
	info.Pending = info.Total - info.Applied
	return info, nil
}

// Close 释放迁移源与数据库连接
func (m *SQLMigrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error, op string) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return fmt.Errorf("migration %s failed: %w", op, err)
}

// =============================================================================
// 内嵌文件
// =============================================================================

// File 一个内嵌迁移（up/down 成对出现，按版本号去重）
type File struct {
	Version uint
	Name    string
}

// Available 按版本升序返回方言下的内嵌迁移
func Available(d Dialect) ([]File, error) {
	entries, err := fs.ReadDir(migrationsFS, sourceDir(d))
	if err != nil {
		return nil, fmt.Errorf("read migrations for %s: %w", d, err)
	}

	var files []File
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		ver, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(ver, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, File{Version: uint(v), Name: strings.TrimSuffix(rest, ".up.sql")})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
