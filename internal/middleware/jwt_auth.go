package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/storage"
)

// JWTAuth JWT认证中间件
type JWTAuth struct {
	jwtManager *jwt.Manager
	blacklist  storage.JWTRepository // 可为 nil，此时不做吊销检查
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *jwt.Manager, blacklist storage.JWTRepository, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		jwtManager: jwtManager,
		blacklist:  blacklist,
		log:        log,
	}
}

// revoked 判断令牌是否已被登出吊销。黑名单后端故障时放行。
func (ja *JWTAuth) revoked(claims *jwt.Claims) bool {
	if ja.blacklist == nil || claims.ID == "" {
		return false
	}
	hit, err := ja.blacklist.IsBlacklisted(claims.ID)
	if err != nil {
		ja.log.Warn("blacklist check failed", zap.Error(err))
		return false
	}
	return hit
}

// RequireAuth 要求携带有效的会话令牌
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		if ja.revoked(claims) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "token revoked",
			})
			c.Abort()
			return
		}

		// 将用户信息存储到上下文
		c.Set("userID", claims.UserID)
		c.Set("userName", claims.Name)
		c.Set("isModerator", claims.IsModerator)
		c.Set("tokenID", claims.ID)
		if claims.ExpiresAt != nil {
			c.Set("tokenExpiresAt", claims.ExpiresAt.Time)
		}

		c.Next()
	}
}

// OptionalAuth 可选认证，匿名请求放行但不写入身份
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err == nil && !ja.revoked(claims) {
			c.Set("userID", claims.UserID)
			c.Set("userName", claims.Name)
			c.Set("isModerator", claims.IsModerator)
			c.Set("authenticated", true)
		}

		c.Next()
	}
}

// RequireModerator 要求认证且身份为管理员
func (ja *JWTAuth) RequireModerator() gin.HandlerFunc {
	require := ja.RequireAuth()
	return func(c *gin.Context) {
		require(c)
		if c.IsAborted() {
			return
		}
		if !c.GetBool("isModerator") {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "moderator access required",
			})
			c.Abort()
		}
	}
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	token, err := c.Cookie("access_token")
	if err == nil && token != "" {
		return token
	}

	return ""
}
