// order-consumer 消费订单事件，计算手续费后写入订单与支付表，并提供查询接口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	feeapp "github.com/wyfcoding/orderpipeline/internal/feemanagement/application"
	feepg "github.com/wyfcoding/orderpipeline/internal/feemanagement/infrastructure/persistence/postgres"
	feehttp "github.com/wyfcoding/orderpipeline/internal/feemanagement/interfaces/http"
	"github.com/wyfcoding/orderpipeline/internal/order/application"
	orderpg "github.com/wyfcoding/orderpipeline/internal/order/infrastructure/persistence/postgres"
	"github.com/wyfcoding/orderpipeline/internal/order/interfaces/consumer"
	orderhttp "github.com/wyfcoding/orderpipeline/internal/order/interfaces/http"
	"github.com/wyfcoding/orderpipeline/pkg/cache"
	"github.com/wyfcoding/orderpipeline/pkg/config"
	"github.com/wyfcoding/orderpipeline/pkg/db"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
	"github.com/wyfcoding/orderpipeline/pkg/middleware"
	"github.com/wyfcoding/orderpipeline/pkg/mq"
	"github.com/wyfcoding/orderpipeline/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", config.GetEnv("APP_CONFIG", "configs/consumer.toml"), "path to config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateConsumer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid consumer config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.ToLogger()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting order consumer",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"group_id", cfg.Kafka.Consumer.GroupID,
		"topics", cfg.ConsumerTopics(),
	)

	m := metrics.New("order_consumer")

	// 3. 数据库
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database", "error", err)
	}
	defer database.Close()

	feeRepo := feepg.NewFeeRepository(database.DB)
	if cfg.Database.AutoMigrate {
		if err := feepg.AutoMigrate(database.DB); err != nil {
			logger.Fatal(ctx, "Failed to migrate fee table", "error", err)
		}
		if err := orderpg.AutoMigrate(database.DB); err != nil {
			logger.Fatal(ctx, "Failed to migrate order tables", "error", err)
		}
		if err := feeRepo.SeedDefaults(ctx); err != nil {
			logger.Fatal(ctx, "Failed to seed default fees", "error", err)
		}
	}

	// 4. Redis，不可用时以无缓存模式运行
	var (
		c       cache.Cache
		limiter ratelimit.RateLimiter
	)
	redisCache, err := cache.New(cache.Config{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		KeyPrefix:    cfg.Redis.KeyPrefix,
	})
	if err != nil {
		logger.Warn(ctx, "Redis unavailable, running without cache", "error", err)
	} else {
		defer redisCache.Close()
		c = redisCache
		limiter = ratelimit.NewRedisRateLimiter(redisCache.Client())
	}

	// 5. 应用服务
	orders := orderpg.NewOrderRepository(database.DB)
	payments := orderpg.NewPaymentRepository(database.DB)
	fees := feeapp.NewCachedFeeCalculator(feeRepo, c, cfg.Fees.CacheTTL, m)
	processor := application.NewOrderProcessingService(database, orders, payments, m)
	ingestion := application.NewOrderIngestionService(fees, processor)

	limits := application.QueryLimits{
		DefaultCount: cfg.Payments.DefaultCount,
		MaxCount:     cfg.Payments.MaxCount,
		CacheTTL:     cfg.Payments.RecentCacheTTL,
	}
	paymentQueries := application.NewPaymentQueryService(payments, c, limits)
	orderQueries := application.NewOrderQueryService(orders, limits)

	// 6. Kafka 消费者
	reader, err := mq.NewReader(mq.ReaderConfig{
		Brokers:            cfg.Kafka.Brokers,
		ClientID:           cfg.Kafka.ClientID,
		Security:           securityConfig(cfg.Kafka.Security),
		GroupID:            cfg.Kafka.Consumer.GroupID,
		Topics:             cfg.ConsumerTopics(),
		AutoOffsetReset:    cfg.Kafka.Consumer.AutoOffsetReset,
		EnableAutoCommit:   cfg.Kafka.Consumer.EnableAutoCommit,
		AutoCommitInterval: cfg.Kafka.Consumer.AutoCommitInterval,
		SessionTimeout:     cfg.Kafka.Consumer.SessionTimeout,
		MaxWait:            cfg.Kafka.Consumer.PollTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to create kafka reader", "error", err)
	}
	orderConsumer := consumer.NewOrderConsumer(consumer.Config{
		EnableAutoCommit:      cfg.Kafka.Consumer.EnableAutoCommit,
		PollTimeout:           cfg.Kafka.Consumer.PollTimeout,
		RetryBackoff:          cfg.Kafka.Consumer.RetryBackoff,
		MaxProcessingAttempts: cfg.Kafka.Consumer.MaxProcessingAttempts,
	}, reader, ingestion, m)

	// 7. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware())
	router.Use(middleware.GinLoggingMiddleware())
	router.Use(middleware.GinMetricsMiddleware(m))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	routeLimits := make(map[string]middleware.RouteLimit, len(cfg.RateLimit.Routes))
	for route, rl := range cfg.RateLimit.Routes {
		routeLimits[route] = middleware.RouteLimit{QPS: rl.QPS, Burst: rl.Burst}
	}
	rateLimit := middleware.RateLimitMiddleware(limiter, middleware.RateLimitConfig{
		Enabled: cfg.RateLimit.Enabled,
		QPS:     cfg.RateLimit.QPS,
		Burst:   cfg.RateLimit.Burst,
		Routes:  routeLimits,
	})
	orderhttp.NewHandler(router, orderQueries, paymentQueries, rateLimit)
	feehttp.NewHandler(router, feeapp.NewFeeService(feeRepo, c))
	router.GET("/health", func(gc *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":        "healthy",
			"service":       cfg.ServiceName,
			"consumerState": orderConsumer.State(),
			"cache":         c != nil,
			"timestamp":     time.Now().Unix(),
		}
		if sqlDB, err := database.DB.DB(); err != nil || sqlDB.PingContext(gc.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		gc.JSON(status, body)
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 8. 启动
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// 致命 broker 错误时返回非 nil，带动整个进程退出
		return orderConsumer.Run(gctx)
	})

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 9. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "Shutting down order consumer")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "order consumer exited with error", "error", err)
		database.Close()
		os.Exit(1)
	}
	logger.Info(context.Background(), "Order consumer stopped")
}

func securityConfig(s config.KafkaSecurityConfig) mq.SecurityConfig {
	return mq.SecurityConfig{
		Protocol:           s.Protocol,
		SASLMechanism:      s.SASLMechanism,
		Username:           s.Username,
		Password:           s.Password,
		CALocation:         s.CALocation,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
}
