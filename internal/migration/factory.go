package migration

import (
	"fmt"

	"github.com/technosurge/leadflow/config"
)

// ConfigFrom 把应用的数据库配置转换成迁移配置。
// sqlite 的相对路径以 home 为根（镜像内 LEADFLOW_HOME=/app）。
func ConfigFrom(dc config.DatabaseConfig, home string) (Config, error) {
	d, err := ParseDialect(dc.Driver)
	if err != nil {
		return Config{}, err
	}
	dc = dc.ResolveHome(home)
	return Config{Dialect: d, DSN: BuildDSN(d, dc), TableName: "schema_migrations"}, nil
}

// BuildDSN 生成 database/sql 驱动可识别的连接串。
// mysql 需要 multiStatements 才能执行多语句迁移文件。
func BuildDSN(d Dialect, dc config.DatabaseConfig) string {
	switch d {
	case DialectPostgres:
		ssl := dc.SSLMode
		if ssl == "" {
			ssl = "require"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			dc.User, dc.Password, dc.Host, dc.Port, dc.Name, ssl)
	case DialectMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			dc.User, dc.Password, dc.Host, dc.Port, dc.Name)
	case DialectSQLite:
		return fmt.Sprintf("file:%s?mode=rwc&_foreign_keys=on", dc.Name)
	default:
		return ""
	}
}

// NewFromConfig 直接从应用配置创建迁移器
func NewFromConfig(dc config.DatabaseConfig) (*SQLMigrator, error) {
	cfg, err := ConfigFrom(dc, config.HomeDir())
	if err != nil {
		return nil, err
	}
	return New(cfg)
}
