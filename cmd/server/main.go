package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"privmail/backend/internal/auth"
	jwtpkg "privmail/backend/internal/auth/jwt"
	"privmail/backend/internal/auth/messagekey"
	"privmail/backend/internal/config"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/health"
	"privmail/backend/internal/logger"
	"privmail/backend/internal/mailer"
	"privmail/backend/internal/monitoring"
	"privmail/backend/internal/pool"
	"privmail/backend/internal/service"
	"privmail/backend/internal/spam"
	"privmail/backend/internal/storage/memory"
	"privmail/backend/internal/storage/postgres"
	"privmail/backend/internal/storage/redis"
	sqlstore "privmail/backend/internal/storage/sql"
	httptransport "privmail/backend/internal/transport/http"
	"privmail/backend/internal/websocket"
)

// main 启动消息系统 HTTP 服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting privmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}
	defer store.Close()

	// 初始化 Redis（可选，用于限流）
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(redis.Options{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-process rate limiting", zap.Error(err))
			redisClient = nil
		}
	}

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// 确保系统账号存在（自动消息与自动封禁的操作者）
	if err := ensureSystemAccount(store, log); err != nil {
		panic(fmt.Sprintf("failed to ensure system account: %v", err))
	}

	// 初始化邮件提醒
	var mail mailer.Mailer
	if cfg.Mailer.Enabled {
		mail = mailer.NewSMTPMailer(cfg.Mailer.Address, cfg.Mailer.Username, cfg.Mailer.Password, cfg.Mailer.From, log)
		log.Info("SMTP mailer enabled", zap.String("address", cfg.Mailer.Address))
	} else {
		mail = mailer.NewLogMailer(log)
	}

	// 通知工作池
	workers := pool.NewWorkerPool(4, 256, log)

	// 会话 JWT 与消息访问密钥
	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	keyIssuer := messagekey.NewIssuer(cfg.MessageKey.Secret)

	// WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, jwtManager, log)

	// 初始化服务层
	counterService := service.NewCounterService(store, metrics, log)
	autobanService := service.NewAutobanService(cfg.Autoban, metrics, log)
	classifier := spam.NewKeywordClassifier()
	deliveryService := service.NewDeliveryService(
		store, classifier, counterService, autobanService,
		mail, wsHub, workers, metrics, log,
	)
	messageService := service.NewMessageService(store, keyIssuer, counterService, wsHub, log)
	authService := auth.NewService(store)

	// HTTP 路由
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:          cfg,
		DeliveryService: deliveryService,
		MessageService:  messageService,
		AuthService:     authService,
		JWTManager:      jwtManager,
		WebSocketHub:    wsHub,
		Store:           store,
		Redis:           redisClient,
		Metrics:         metrics,
		Health:          healthChecker,
		Logger:          log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// 通知工作池
	workers.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		workers.Stop()
		if redisClient != nil {
			redisClient.Close()
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择存储实现。
func initializeStorage(cfg *config.Config, log *zap.Logger) (domain.Store, error) {
	switch cfg.Database.Type {
	case "postgres":
		store, err := sqlstore.NewStore(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		log.Info("using postgres storage (gorm)")
		return store, nil

	case "mysql":
		store, err := sqlstore.NewMySQLStore(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create mysql store: %w", err)
		}
		log.Info("using mysql storage (gorm)")
		return store, nil

	case "pgx":
		client, err := postgres.NewClient(postgres.ClientConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx client: %w", err)
		}
		store, err := postgres.NewStore(client)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx store: %w", err)
		}
		log.Info("using postgres storage (pgx)")
		return store, nil

	case "":
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Database.Type)
	}
}

// ensureSystemAccount 确保系统账号存在。
func ensureSystemAccount(store domain.Store, log *zap.Logger) error {
	if _, err := store.GetAccountByName(domain.SystemAccountName); err == nil {
		return nil
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:          uuid.NewString(),
		Name:        domain.SystemAccountName,
		DisplayName: "System",
		IsGold:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateAccount(account); err != nil {
		return err
	}
	log.Info("system account created", zap.String("id", account.ID))
	return nil
}
