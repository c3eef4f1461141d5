package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"staffclock/backend/config"
	"staffclock/backend/internal/api/handler"
	"staffclock/backend/internal/api/router"
	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/service"
	"staffclock/backend/pkg/database"
	applogger "staffclock/backend/pkg/logger"
	"staffclock/backend/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径（缺省查找 ./config/config.yaml）")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log, "registry")
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("registry 服务启动中...", zap.Int("port", cfg.Server.Port))

	// 3. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level == "debug", logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, database.SchemaRegistry, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选，仅用于限流；失败时降级为本地限流）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，限流降级为进程内实现", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 连接 RabbitMQ
	broker, err := messaging.NewAMQPBroker(&cfg.Broker, logger)
	if err != nil {
		logger.Fatal("RabbitMQ 连接失败", zap.Error(err))
	}

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewRegistryService(repo, broker, logger)
	h := handler.NewRegistryHandler(svc)

	// 7. 初始化路由
	health := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return sqlDB.PingContext(ctx)
	}
	engine := router.SetupRegistry(cfg, h, rdb, health, logger)

	// 8. 校验请求消费者
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var background sync.WaitGroup
	dispatcher := messaging.NewDispatcher(svc.Identity, nil)
	background.Add(1)
	go func() {
		defer background.Done()
		if err := broker.Subscribe(ctx, dispatcher.Keys(), dispatcher.Handler()); err != nil {
			logger.Error("校验请求消费中断，服务退出", zap.Error(err))
			stop()
		}
	}()

	// 9. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP 服务器异常", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("收到关闭信号，开始优雅关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	background.Wait()
	if err := broker.Close(); err != nil {
		logger.Warn("关闭 RabbitMQ 连接失败", zap.Error(err))
	}
	sqlDB.Close()
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("registry 服务已关闭")
}
