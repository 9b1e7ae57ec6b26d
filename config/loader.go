// =============================================================================
// 📦 LeadFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("LEADFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 LeadFlow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Agent     AgentConfig     `yaml:"agent" env:"AGENT"`
	Email     EmailConfig     `yaml:"email" env:"EMAIL"`
	SMTP      SMTPConfig      `yaml:"smtp" env:"SMTP"`
	LeadStore LeadStoreConfig `yaml:"lead_store" env:"LEAD_STORE"`
	Sheets    SheetsConfig    `yaml:"sheets" env:"SHEETS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Session   SessionConfig   `yaml:"session" env:"SESSION"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Image     ImageConfig     `yaml:"image" env:"IMAGE"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 监听地址，镜像内为 0.0.0.0
	Host string `yaml:"host" env:"HOST"`
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不单独监听
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，"*" 表示任意来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 管理接口 API Key
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传递 API Key
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// JWT 密钥，非空时管理接口也接受 Bearer Token
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// JWT 签发方
	JWTIssuer string `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	// 请求体大小上限
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 熔断阈值（连续失败次数）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断恢复等待时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// AgentConfig LeadBot 配置
type AgentConfig struct {
	// 对话模型
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 回复最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 对话记忆 Token 上限
	MemoryTokenLimit int `yaml:"memory_token_limit" env:"MEMORY_TOKEN_LIMIT"`
	// 系统提示词，留空使用内置销售提示词
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 结束意图关键词
	EndKeywords []string `yaml:"end_keywords" env:"END_KEYWORDS"`
	// 命中几个关键词视为结束
	IntentThreshold int `yaml:"intent_threshold" env:"INTENT_THRESHOLD"`
}

// EmailConfig EmailAgent 配置
type EmailConfig struct {
	// 邮件生成模型
	Model string `yaml:"model" env:"MODEL"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 批量营销并发数
	CampaignConcurrency int `yaml:"campaign_concurrency" env:"CAMPAIGN_CONCURRENCY"`
}

// SMTPConfig SMTP 配置
type SMTPConfig struct {
	Host     string        `yaml:"host" env:"HOST"`
	Port     int           `yaml:"port" env:"PORT"`
	Username string        `yaml:"username" env:"USERNAME"`
	Password string        `yaml:"password" env:"PASSWORD"`
	From     string        `yaml:"from" env:"FROM"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LeadStoreConfig 线索存储配置
type LeadStoreConfig struct {
	// 后端: sheets, database
	Backend string `yaml:"backend" env:"BACKEND"`
}

// SheetsConfig Google Sheets 配置
type SheetsConfig struct {
	// 表格 ID
	SpreadsheetID string `yaml:"spreadsheet_id" env:"SPREADSHEET_ID"`
	// 工作表名称
	SheetName string `yaml:"sheet_name" env:"SHEET_NAME"`
	// 服务账号凭据文件
	CredentialsFile string `yaml:"credentials_file" env:"CREDENTIALS_FILE"`
	// Base64 编码的服务账号凭据
	CredentialsBase64 string `yaml:"credentials_base64" env:"CREDENTIALS_BASE64"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	// 后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// 会话过期时间，0 表示不过期
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// Redis key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// ImageConfig 镜像构建配置
type ImageConfig struct {
	// 基础运行时镜像
	BaseImage string `yaml:"base_image" env:"BASE_IMAGE"`
	// 系统编译工具链（恰好两个）
	Toolchains []string `yaml:"toolchains" env:"TOOLCHAINS"`
	// 依赖清单文件
	ManifestFiles []string `yaml:"manifest_files" env:"MANIFEST_FILES"`
	// 工作目录
	WorkDir string `yaml:"workdir" env:"WORKDIR"`
	// 源码目录（宿主机）
	SourceDir string `yaml:"source_dir" env:"SOURCE_DIR"`
	// 对外端口
	Port int `yaml:"port" env:"PORT"`
	// 搜索路径环境变量名
	SearchPathEnv string `yaml:"search_path_env" env:"SEARCH_PATH_ENV"`
	// 应用入口 module:attribute
	Entrypoint string `yaml:"entrypoint" env:"ENTRYPOINT"`
	// 推送地址，留空只构建不推送
	Registry string `yaml:"registry" env:"REGISTRY"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// legacyEnv 兼容旧部署使用的环境变量
var legacyEnv = map[string]func(*Config, string){
	"OPENAI_API_KEY":                        func(c *Config, v string) { c.LLM.APIKey = v },
	"GMAIL_USER":                            func(c *Config, v string) { c.SMTP.Username = v },
	"GMAIL_PASS":                            func(c *Config, v string) { c.SMTP.Password = v },
	"GOOGLE_APPLICATION_CREDENTIALS_BASE64": func(c *Config, v string) { c.Sheets.CredentialsBase64 = v },
}

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "LEADFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 旧环境变量 → 前缀环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	for key, apply := range legacyEnv {
		if v := os.Getenv(key); v != "" {
			apply(cfg, v)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按字符串解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "agent temperature must be between 0 and 2")
	}
	if c.Email.Temperature < 0 || c.Email.Temperature > 2 {
		errs = append(errs, "email temperature must be between 0 and 2")
	}
	if c.Agent.IntentThreshold <= 0 {
		errs = append(errs, "intent_threshold must be positive")
	}
	if c.Email.CampaignConcurrency <= 0 {
		errs = append(errs, "campaign_concurrency must be positive")
	}
	switch c.LeadStore.Backend {
	case "sheets":
		if c.Sheets.SpreadsheetID == "" {
			errs = append(errs, "sheets.spreadsheet_id is required for the sheets lead store")
		}
	case "database":
		if c.Database.DSN() == "" {
			errs = append(errs, "unsupported database driver: "+c.Database.Driver)
		}
	default:
		errs = append(errs, "unsupported lead store backend: "+c.LeadStore.Backend)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, "unsupported session backend: "+c.Session.Backend)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, "invalid SMTP port")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// HomeEnv 部署根目录的环境变量，镜像内为 WORKDIR
const HomeEnv = "LEADFLOW_HOME"

// HomeDir 返回 $LEADFLOW_HOME，未设置时为空
func HomeDir() string {
	return os.Getenv(HomeEnv)
}

// ResolveHome 把 sqlite 的相对文件名固定到 home 之下。
// 迁移与连接池都经过这里，保证两者打开的是同一个文件。
func (d DatabaseConfig) ResolveHome(home string) DatabaseConfig {
	if d.Driver != "sqlite" || home == "" || d.Name == "" || filepath.IsAbs(d.Name) {
		return d
	}
	if abs, err := filepath.Abs(home); err == nil {
		home = abs
	}
	d.Name = filepath.Join(home, d.Name)
	return d
}

// Addr 返回 API 服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}
