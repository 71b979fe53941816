package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testJWTSecret = "test-jwt-secret-key-32-chars-long-minimum"
	testKeySecret = "test-message-key-secret-32-chars-minimum"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"PRIVMAIL_JWT_SECRET",
		"PRIVMAIL_MESSAGEKEY_SECRET",
		"PRIVMAIL_SERVER_HOST",
		"PRIVMAIL_SERVER_PORT",
		"PRIVMAIL_AUTOBAN_THRESHOLD",
		"PRIVMAIL_AUTOBAN_WINDOW",
		"PRIVMAIL_AUTOBAN_BAN_DAYS",
		"PRIVMAIL_CORS_ALLOWED_ORIGINS",
		"PRIVMAIL_DATABASE_TYPE",
		"PRIVMAIL_RATELIMIT_SENDS_PER_MINUTE",
		"PRIVMAIL_LOG_LEVEL",
		"PRIVMAIL_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	clearEnv := func() {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("PRIVMAIL_JWT_SECRET", testJWTSecret)
		os.Setenv("PRIVMAIL_MESSAGEKEY_SECRET", testKeySecret)
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 10, cfg.Autoban.Threshold)
		assert.Equal(t, 24*time.Hour, cfg.Autoban.Window)
		assert.Equal(t, 3, cfg.Autoban.BanDays)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
		assert.Empty(t, cfg.Database.Type)
		assert.Equal(t, testJWTSecret, cfg.JWT.Secret)
		assert.Equal(t, "privmail", cfg.JWT.Issuer)
		assert.Equal(t, 15*time.Minute, cfg.JWT.AccessExpiry)
		assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshExpiry)
		assert.Equal(t, testKeySecret, cfg.MessageKey.Secret)
		assert.Equal(t, 10, cfg.RateLimit.SendsPerMinute)
		assert.Equal(t, 5, cfg.RateLimit.Burst)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv()
		os.Setenv("PRIVMAIL_SERVER_HOST", "127.0.0.1")
		os.Setenv("PRIVMAIL_SERVER_PORT", "9090")
		os.Setenv("PRIVMAIL_AUTOBAN_THRESHOLD", "5")
		os.Setenv("PRIVMAIL_AUTOBAN_WINDOW", "48h")
		os.Setenv("PRIVMAIL_AUTOBAN_BAN_DAYS", "7")
		os.Setenv("PRIVMAIL_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")
		os.Setenv("PRIVMAIL_DATABASE_TYPE", "postgres")
		os.Setenv("PRIVMAIL_RATELIMIT_SENDS_PER_MINUTE", "3")
		os.Setenv("PRIVMAIL_LOG_LEVEL", "debug")
		os.Setenv("PRIVMAIL_LOG_DEVELOPMENT", "true")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Autoban.Threshold)
		assert.Equal(t, 48*time.Hour, cfg.Autoban.Window)
		assert.Equal(t, 7, cfg.Autoban.BanDays)
		assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "postgres", cfg.Database.Type)
		assert.Equal(t, 3, cfg.RateLimit.SendsPerMinute)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
	})

	t.Run("拒绝默认的JWT密钥", func(t *testing.T) {
		clearEnv()
		os.Unsetenv("PRIVMAIL_JWT_SECRET")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝过短的JWT密钥", func(t *testing.T) {
		clearEnv()
		os.Setenv("PRIVMAIL_JWT_SECRET", "too-short")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝缺失的消息密钥", func(t *testing.T) {
		clearEnv()
		os.Unsetenv("PRIVMAIL_MESSAGEKEY_SECRET")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝与JWT相同的消息密钥", func(t *testing.T) {
		clearEnv()
		os.Setenv("PRIVMAIL_MESSAGEKEY_SECRET", testJWTSecret)

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝非法的封禁窗口", func(t *testing.T) {
		clearEnv()
		os.Setenv("PRIVMAIL_AUTOBAN_WINDOW", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("拒绝非正的封禁阈值", func(t *testing.T) {
		clearEnv()
		os.Setenv("PRIVMAIL_AUTOBAN_THRESHOLD", "0")

		_, err := Load()
		assert.Error(t, err)
	})
}
