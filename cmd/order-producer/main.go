// order-producer 持续生成模拟订单并发布到 Kafka，库存耗尽后停止生成
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

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	invdomain "github.com/wyfcoding/orderpipeline/internal/inventory/domain"
	"github.com/wyfcoding/orderpipeline/internal/inventory/infrastructure/persistence/memory"
	invhttp "github.com/wyfcoding/orderpipeline/internal/inventory/interfaces/http"
	"github.com/wyfcoding/orderpipeline/internal/order/application"
	"github.com/wyfcoding/orderpipeline/internal/order/infrastructure/messaging"
	"github.com/wyfcoding/orderpipeline/pkg/config"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
	"github.com/wyfcoding/orderpipeline/pkg/middleware"
	"github.com/wyfcoding/orderpipeline/pkg/mq"
)

func main() {
	configPath := flag.String("config", config.GetEnv("APP_CONFIG", "configs/producer.toml"), "path to config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateProducer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid producer config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.ToLogger()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "Starting order producer",
		"service", cfg.ServiceName,
		"version", cfg.Version,
		"environment", cfg.Environment,
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topics.OrderEvents,
	)

	m := metrics.New("order_producer")

	// 3. 库存
	products := memory.NewProductRepository(invdomain.DefaultCatalog(cfg.Generator.InitialStock))

	// 4. Kafka 生产者
	producer, err := mq.NewProducer(mq.ProducerConfig{
		Brokers:                cfg.Kafka.Brokers,
		ClientID:               cfg.Kafka.ClientID,
		Security:               securityConfig(cfg.Kafka.Security),
		Acks:                   cfg.Kafka.Producer.Acks,
		Retries:                cfg.Kafka.Producer.Retries,
		MaxInFlight:            cfg.Kafka.Producer.MaxInFlight,
		EnableIdempotence:      cfg.Kafka.Producer.EnableIdempotence,
		Compression:            cfg.Kafka.Producer.Compression,
		Linger:                 cfg.Kafka.Producer.Linger,
		BatchSize:              cfg.Kafka.Producer.BatchSize,
		WriteTimeout:           cfg.Kafka.Producer.WriteTimeout,
		FlushTimeout:           cfg.Kafka.Producer.FlushTimeout,
		AllowAutoTopicCreation: cfg.Kafka.Producer.AllowAutoTopicCreation,
	})
	if err != nil {
		logger.Fatal(ctx, "Failed to create kafka producer", "error", err)
	}
	// 退出前刷新未发送的消息
	defer producer.Close()

	publisher := messaging.NewKafkaOrderEventPublisher(producer, cfg.Kafka.Topics.OrderEvents, messaging.BreakerConfig{}, m)

	// 5. 订单生成器
	node, err := snowflake.NewNode(cfg.Generator.NodeID)
	if err != nil {
		logger.Fatal(ctx, "Invalid snowflake node id", "node_id", cfg.Generator.NodeID, "error", err)
	}
	generator := application.NewOrderGenerator(application.GeneratorConfig{
		StartDelay:          cfg.Generator.StartDelay,
		MinInterval:         cfg.Generator.MinInterval,
		MaxInterval:         cfg.Generator.MaxInterval,
		ReservationCooldown: cfg.Generator.ReservationCooldown,
		ErrorRetryDelay:     cfg.Generator.ErrorRetryDelay,
		MinItems:            cfg.Generator.MinItems,
		MaxItems:            cfg.Generator.MaxItems,
		MaxQuantity:         cfg.Generator.MaxQuantity,
		Currency:            cfg.Generator.Currency,
	}, products, publisher, node, m)

	// 6. HTTP
	router := newRouter(cfg, m)
	invhttp.NewHandler(router, products)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"service":        cfg.ServiceName,
			"generatorState": generator.State(),
			"timestamp":      time.Now().Unix(),
		})
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	// 7. 启动
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := generator.Run(gctx); err != nil {
			return fmt.Errorf("order generator: %w", err)
		}
		// 库存耗尽后 HTTP 继续提供查询，直到收到退出信号
		return nil
	})

	g.Go(func() error {
		logger.Info(gctx, "HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 8. 优雅关闭
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "Shutting down order producer")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "order producer exited with error", "error", err)
	}
	logger.Info(context.Background(), "Order producer stopped")
}

func newRouter(cfg *config.Config, m *metrics.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(middleware.GinRecoveryMiddleware())
	r.Use(middleware.GinLoggingMiddleware())
	r.Use(middleware.GinMetricsMiddleware(m))
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}
	return r
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
