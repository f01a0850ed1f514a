// Package consumer 从 Kafka 拉取订单事件并交给落库流程，负责位点提交与错误分类
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/orderpipeline/internal/order/application"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
	"github.com/wyfcoding/orderpipeline/pkg/mq"
)

// State 消费循环状态
type State string

const (
	StateStarting     State = "Starting"
	StatePolling      State = "Polling"
	StateProcessing   State = "Processing"
	StateCommitting   State = "Committing"
	StateShuttingDown State = "ShuttingDown"
	StateStopped      State = "Stopped"
)

// MessageReader 由 *kafka.Reader 实现
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Ingestor 由 *application.OrderIngestionService 实现
type Ingestor interface {
	Ingest(ctx context.Context, event *domain.OrderSubmittedEvent) (*application.ProcessResult, error)
}

// MalformedMessageError 消息无法反序列化，说明生产端与消费端契约不一致
type MalformedMessageError struct {
	Topic     string
	Partition int
	Offset    int64
	Err       error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed message at %s/%d@%d: %v", e.Topic, e.Partition, e.Offset, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// Config 消费循环参数
type Config struct {
	// true 时收到消息即提交（由 reader 按周期批量刷新），false 时处理成功后同步提交
	EnableAutoCommit bool
	PollTimeout      time.Duration
	// 未分类拉取错误与可重试处理失败之间的固定等待
	RetryBackoff time.Duration
	// 单条消息的最多处理次数，之后不提交并继续
	MaxProcessingAttempts int
}

// OrderConsumer 订单事件消费循环
type OrderConsumer struct {
	cfg      Config
	reader   MessageReader
	ingestor Ingestor
	metrics  *metrics.Metrics
	logger   *slog.Logger
	state    atomic.Value
	sleep    func(ctx context.Context, d time.Duration) bool
}

// NewOrderConsumer m 可为 nil
func NewOrderConsumer(cfg Config, reader MessageReader, ingestor Ingestor, m *metrics.Metrics) *OrderConsumer {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.MaxProcessingAttempts <= 0 {
		cfg.MaxProcessingAttempts = 3
	}
	c := &OrderConsumer{
		cfg:      cfg,
		reader:   reader,
		ingestor: ingestor,
		metrics:  m,
		logger:   logger.With("component", "order_consumer"),
		sleep:    sleepCtx,
	}
	c.state.Store(StateStarting)
	return c
}

// State 当前状态
func (c *OrderConsumer) State() State {
	return c.state.Load().(State)
}

// Run 阻塞消费直到 ctx 取消（返回 nil）或遇到致命 broker 错误（返回该错误）。
// 退出时关闭 reader，关闭失败只记录日志
func (c *OrderConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Error("failed to close kafka reader", "error", err)
		} else {
			c.logger.Info("kafka reader closed")
		}
		c.state.Store(StateStopped)
	}()

	c.logger.InfoContext(ctx, "order consumer started",
		"auto_commit", c.cfg.EnableAutoCommit,
		"poll_timeout", c.cfg.PollTimeout)

	for {
		if ctx.Err() != nil {
			c.state.Store(StateShuttingDown)
			c.logger.Info("order consumer shutting down")
			return nil
		}

		c.state.Store(StatePolling)
		msg, err := c.poll(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				continue
			case errors.Is(err, context.DeadlineExceeded):
				// 空轮询
				continue
			case mq.IsFatal(err):
				c.logger.ErrorContext(ctx, "fatal consumer error, stopping", "error", err)
				return fmt.Errorf("consumer: %w", err)
			case mq.IsBrokerError(err):
				c.observePollError()
				c.logger.WarnContext(ctx, "consume error", "error", err)
				continue
			default:
				c.observePollError()
				c.logger.ErrorContext(ctx, "unexpected error while polling, backing off",
					"error", err, "backoff", c.cfg.RetryBackoff)
				c.sleep(ctx, c.cfg.RetryBackoff)
				continue
			}
		}

		if err := c.handle(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "failed to process message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err)
		}
	}
}

func (c *OrderConsumer) poll(ctx context.Context) (kafka.Message, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()
	return c.reader.FetchMessage(pollCtx)
}

// handle 处理单条消息。业务规则拒绝视为已处理并提交；
// 反序列化失败与重试耗尽的失败返回错误且不提交
func (c *OrderConsumer) handle(ctx context.Context, msg kafka.Message) error {
	ctx = logger.WithTraceID(ctx, fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset))
	c.state.Store(StateProcessing)
	logger.Debug(ctx, "processing message",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))

	if c.cfg.EnableAutoCommit {
		c.commit(ctx, msg)
	}

	event, err := domain.UnmarshalOrderSubmittedEvent(msg.Value)
	if err != nil {
		c.observe(metrics.OutcomeMalformed)
		return &MalformedMessageError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
	}

	result, err := c.ingestWithRetry(ctx, event)
	switch {
	case err == nil && result.Duplicate:
		c.observe(metrics.OutcomeDuplicate)
		logger.Info(ctx, "duplicate order event ignored", "order_id", event.OrderID, "event_id", event.EventID)
	case err == nil:
		c.observe(metrics.OutcomeIngested)
		logger.Info(ctx, "order ingested",
			"order_id", result.Order.OrderID,
			"transaction_id", result.Payment.TransactionID,
			"fee_amount", result.Payment.FeeAmount.String())
	case errors.Is(err, domain.ErrBusinessRule):
		// 业务拒绝不重试，避免毒消息反复投递
		c.observe(metrics.OutcomeSkipped)
		logger.Warn(ctx, "order event rejected by business rule", "order_id", event.OrderID, "error", err)
	default:
		c.observe(metrics.OutcomeFailed)
		return err
	}

	if !c.cfg.EnableAutoCommit {
		c.state.Store(StateCommitting)
		c.commit(ctx, msg)
	}
	return nil
}

func (c *OrderConsumer) ingestWithRetry(ctx context.Context, event *domain.OrderSubmittedEvent) (*application.ProcessResult, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxProcessingAttempts; attempt++ {
		result, err := c.ingestor.Ingest(ctx, event)
		if err == nil || errors.Is(err, domain.ErrBusinessRule) {
			return result, err
		}
		lastErr = err
		if attempt == c.cfg.MaxProcessingAttempts {
			break
		}
		logger.Warn(ctx, "order ingestion failed, retrying",
			"order_id", event.OrderID, "attempt", attempt, "backoff", c.cfg.RetryBackoff, "error", err)
		if !c.sleep(ctx, c.cfg.RetryBackoff) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("ingest %s after %d attempts: %w", event.OrderID, c.cfg.MaxProcessingAttempts, lastErr)
}

func (c *OrderConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if c.metrics != nil {
			c.metrics.CommitFailures.Inc()
		}
		logger.Error(ctx, "offset commit failed",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	logger.Debug(ctx, "offset committed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
}

func (c *OrderConsumer) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.MessagesConsumed.WithLabelValues(outcome).Inc()
	}
}

func (c *OrderConsumer) observePollError() {
	if c.metrics != nil {
		c.metrics.PollErrors.Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
