package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数。
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// AutobanConfig 定义自动封禁策略的参数。
type AutobanConfig struct {
	// Threshold 触发封禁所需的不同垃圾收件人数量，默认 10
	Threshold int
	// Window 统计窗口（按消息创建时间回溯），默认 24h
	Window time.Duration
	// BanDays 封禁天数，默认 3
	BanDays int
}

// MailerConfig 定义外发邮件提醒的 SMTP 配置。
type MailerConfig struct {
	Enabled  bool   // 是否启用邮件提醒，默认 false（仅日志）
	Address  string // SMTP 服务器地址，格式 "host:port"
	Username string // SMTP 认证用户名
	Password string // SMTP 认证密码
	From     string // 发件人地址
}

// CORSConfig 定义跨域资源共享 (CORS) 配置。
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置。
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置。
type DatabaseConfig struct {
	Type            string        // 数据库类型: "postgres"、"pgx" 或 "mysql"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置。
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis（限流与 JWT 黑名单）
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义会话 JWT 认证相关配置。
type JWTConfig struct {
	Secret        string        // JWT 签名密钥，必须至少 32 字符
	Issuer        string        // JWT 签发者标识，默认 "privmail"
	AccessExpiry  time.Duration // 访问令牌有效期，默认 15 分钟
	RefreshExpiry time.Duration // 刷新令牌有效期，默认 7 天
}

// MessageKeyConfig 定义消息链接访问令牌的配置。
type MessageKeyConfig struct {
	// Secret 进程级密钥，实际签名密钥按用途派生；必须至少 32 字符，
	// 且不得与会话 JWT 密钥相同
	Secret string
}

// RateLimitConfig 定义发送限流配置。
type RateLimitConfig struct {
	// SendsPerMinute 单个账号每分钟允许的发送次数，默认 10
	SendsPerMinute int
	// Burst 令牌桶突发容量，默认 5
	Burst int
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置。
type Config struct {
	Server     ServerConfig
	Autoban    AutobanConfig
	Mailer     MailerConfig
	CORS       CORSConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	MessageKey MessageKeyConfig
	RateLimit  RateLimitConfig
}

// Load 从环境变量和 .env 文件加载系统配置。
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: PRIVMAIL_
// 例如: PRIVMAIL_SERVER_HOST, PRIVMAIL_JWT_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("privmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("autoban.threshold", 10)
	viper.SetDefault("autoban.window", "24h")
	viper.SetDefault("autoban.ban_days", 3)
	viper.SetDefault("mailer.enabled", false)
	viper.SetDefault("mailer.address", "")
	viper.SetDefault("mailer.username", "")
	viper.SetDefault("mailer.password", "")
	viper.SetDefault("mailer.from", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "privmail")
	viper.SetDefault("jwt.access_expiry", "15m")
	viper.SetDefault("jwt.refresh_expiry", "168h")
	viper.SetDefault("messagekey.secret", "")
	viper.SetDefault("ratelimit.sends_per_minute", 10)
	viper.SetDefault("ratelimit.burst", 5)

	autobanWindow, err := time.ParseDuration(viper.GetString("autoban.window"))
	if err != nil {
		return nil, fmt.Errorf("invalid autoban.window: %w", err)
	}
	threshold := viper.GetInt("autoban.threshold")
	if threshold <= 0 {
		return nil, fmt.Errorf("autoban.threshold must be positive")
	}
	banDays := viper.GetInt("autoban.ban_days")
	if banDays <= 0 {
		return nil, fmt.Errorf("autoban.ban_days must be positive")
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	accessExpiry, err := time.ParseDuration(viper.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = 15 * time.Minute
	}

	refreshExpiry, err := time.ParseDuration(viper.GetString("jwt.refresh_expiry"))
	if err != nil {
		refreshExpiry = 7 * 24 * time.Hour
	}

	jwtSecret := viper.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if jwtSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set PRIVMAIL_JWT_SECRET environment variable")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	messageKeySecret := viper.GetString("messagekey.secret")
	if messageKeySecret == "" {
		return nil, fmt.Errorf("SECURITY ERROR: message key secret is required. Please set PRIVMAIL_MESSAGEKEY_SECRET environment variable")
	}
	if len(messageKeySecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: message key secret must be at least 32 characters long")
	}
	// 消息访问令牌与会话令牌的密钥必须隔离
	if messageKeySecret == jwtSecret {
		return nil, fmt.Errorf("SECURITY ERROR: message key secret must differ from the JWT secret")
	}

	sendsPerMinute := viper.GetInt("ratelimit.sends_per_minute")
	if sendsPerMinute <= 0 {
		sendsPerMinute = 10
	}
	burst := viper.GetInt("ratelimit.burst")
	if burst <= 0 {
		burst = 5
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Autoban: AutobanConfig{
			Threshold: threshold,
			Window:    autobanWindow,
			BanDays:   banDays,
		},
		Mailer: MailerConfig{
			Enabled:  viper.GetBool("mailer.enabled"),
			Address:  viper.GetString("mailer.address"),
			Username: viper.GetString("mailer.username"),
			Password: viper.GetString("mailer.password"),
			From:     viper.GetString("mailer.from"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:        jwtSecret,
			Issuer:        viper.GetString("jwt.issuer"),
			AccessExpiry:  accessExpiry,
			RefreshExpiry: refreshExpiry,
		},
		MessageKey: MessageKeyConfig{
			Secret: messageKeySecret,
		},
		RateLimit: RateLimitConfig{
			SendsPerMinute: sendsPerMinute,
			Burst:          burst,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片。
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件。
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 如果文件不存在，静默失败（.env 是可选的）；
// 已存在的环境变量优先级更高，不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
