package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"privmail/backend/internal/auth"
	jwtpkg "privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/config"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/health"
	"privmail/backend/internal/middleware"
	"privmail/backend/internal/monitoring"
	"privmail/backend/internal/service"
	"privmail/backend/internal/storage"
	"privmail/backend/internal/storage/redis"
	"privmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config          *config.Config
	DeliveryService *service.DeliveryService
	MessageService  *service.MessageService
	AuthService     *auth.Service
	JWTManager      *jwtpkg.Manager
	WebSocketHub    *websocket.Hub
	Store           domain.Store
	Redis           *redis.Client // 可为 nil
	Metrics         *monitoring.Metrics
	Health          *health.HealthChecker
	Logger          *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"X-Max-Body-Size",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时需关闭凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 未启用 Redis 时不做令牌吊销
	var blacklist storage.JWTRepository
	if deps.Redis != nil {
		blacklist = deps.Redis
	}

	messageHandler := NewMessageHandler(deps.DeliveryService, deps.MessageService, deps.Store)
	authHandler := NewAuthHandler(deps.AuthService, deps.JWTManager, deps.Store, blacklist)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, blacklist, deps.Logger)
	sendRateLimit := middleware.NewSendRateLimit(deps.Config.RateLimit, deps.Redis, deps.Logger)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/health", gin.WrapH(deps.Health.Handler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", deps.Metrics.Handler())
	}

	// V1 API
	v1 := router.Group("/v1")
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.POST("/logout", jwtAuth.RequireAuth(), authHandler.Logout)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
		}

		// ========== Message Routes ==========
		// 消息详情允许匿名访问：链接访问密钥本身就是凭证
		v1.GET("/messages/:id", jwtAuth.OptionalAuth(), messageHandler.getMessage)

		messageRoutes := v1.Group("/messages")
		messageRoutes.Use(jwtAuth.RequireAuth())
		{
			messageRoutes.POST("",
				middleware.BodySizeLimit(middleware.MessageBodyLimit),
				sendRateLimit.Limit(),
				messageHandler.sendMessage)
			messageRoutes.GET("", messageHandler.listMessages)
			messageRoutes.GET("/unread-count", messageHandler.unreadCount)
			messageRoutes.POST("/mark-all-read", messageHandler.markAllRead)

			messageRoutes.GET("/:id/link", messageHandler.issueLink)
			messageRoutes.GET("/:id/respond", messageHandler.buildResponseDraft)
			messageRoutes.PATCH("/:id/read", messageHandler.setRead)
			messageRoutes.DELETE("/:id", messageHandler.deleteMessage)
			messageRoutes.POST("/:id/restore", messageHandler.restoreMessage)
		}

		// ========== WebSocket Routes ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(jwtAuth.RequireModerator())
		{
			adminRoutes.POST("/messages", messageHandler.createAutomated)
		}
	}

	return router
}
