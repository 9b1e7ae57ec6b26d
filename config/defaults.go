// =============================================================================
// 📦 LeadFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Agent:     DefaultAgentConfig(),
		Email:     DefaultEmailConfig(),
		SMTP:      DefaultSMTPConfig(),
		LeadStore: LeadStoreConfig{Backend: "database"},
		Sheets:    DefaultSheetsConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Session:   DefaultSessionConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Image:     DefaultImageConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		HTTPPort:           8000,
		MetricsPort:        0,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       60 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       20,
		RateLimitBurst:     40,
		CORSAllowedOrigins: []string{"*"},
		MaxBodyBytes:       1 << 20,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		BaseURL:             "https://api.openai.com",
		Timeout:             30 * time.Second,
		MaxRetries:          2,
		BreakerThreshold:    5,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultAgentConfig 返回默认 LeadBot 配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:            "gpt-4o",
		Temperature:      0.7,
		MaxTokens:        200,
		MemoryTokenLimit: 3000,
		EndKeywords: []string{
			"bye", "thanks", "goodbye", "stop", "end",
			"quit", "that's all", "finished", "no more",
		},
		IntentThreshold: 1,
	}
}

// DefaultEmailConfig 返回默认 EmailAgent 配置
func DefaultEmailConfig() EmailConfig {
	return EmailConfig{
		Model:               "gpt-4o-mini",
		Temperature:         0.7,
		MaxTokens:           300,
		CampaignConcurrency: 4,
	}
}

// DefaultSMTPConfig 返回默认 SMTP 配置
func DefaultSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host:    "smtp.gmail.com",
		Port:    465,
		Timeout: 20 * time.Second,
	}
}

// DefaultSheetsConfig 返回默认 Google Sheets 配置
func DefaultSheetsConfig() SheetsConfig {
	return SheetsConfig{
		SheetName: "Sheet1",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "leadflow",
		Name:            "leadflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Backend:   "memory",
		TTL:       24 * time.Hour,
		KeyPrefix: "leadflow:session:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "leadflow",
		SampleRate:   0.1,
	}
}

// DefaultImageConfig 返回默认镜像构建配置
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		BaseImage:     "golang:1.24-bookworm",
		Toolchains:    []string{"gcc", "g++"},
		ManifestFiles: []string{"go.mod", "go.sum"},
		WorkDir:       "/app",
		SourceDir:     ".",
		Port:          8000,
		SearchPathEnv: "LEADFLOW_HOME",
		Entrypoint:    "workflow:app",
	}
}
