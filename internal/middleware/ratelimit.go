package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"privmail/backend/internal/config"
	"privmail/backend/internal/storage/redis"
)

// SendRateLimit 限制单个账号的发送频率。
//
// 默认用进程内令牌桶按账号限流；配置了 Redis 时改用共享的
// 固定窗口计数，多实例部署下限流口径一致。
type SendRateLimit struct {
	cfg   config.RateLimitConfig
	redis *redis.Client
	log   *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSendRateLimit 创建发送限流中间件。redis 可为 nil。
func NewSendRateLimit(cfg config.RateLimitConfig, redisClient *redis.Client, log *zap.Logger) *SendRateLimit {
	return &SendRateLimit{
		cfg:      cfg,
		redis:    redisClient,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Limit 返回限流的 gin 中间件，须在认证中间件之后挂载。
func (rl *SendRateLimit) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.Next()
			return
		}

		allowed, err := rl.allow(userID)
		if err != nil {
			// 限流后端故障时放行，不阻断业务
			rl.log.Warn("rate limit backend error", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many messages, slow down",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *SendRateLimit) allow(userID string) (bool, error) {
	if rl.redis != nil {
		key := fmt.Sprintf("ratelimit:send:%s", userID)
		count, err := rl.redis.IncrementRateLimit(key, time.Minute)
		if err != nil {
			return false, err
		}
		return count <= int64(rl.cfg.SendsPerMinute), nil
	}
	return rl.limiter(userID).Allow(), nil
}

// limiter 返回（必要时创建）账号对应的令牌桶。
func (rl *SendRateLimit) limiter(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.cfg.SendsPerMinute)/60.0), rl.cfg.Burst)
		rl.limiters[userID] = l
	}
	return l
}
