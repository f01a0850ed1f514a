// Package mq 提供 Kafka 生产者与消费者的通用封装，包含投递回执、错误分类、SASL/TLS 配置
package mq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// HeaderMessageID 每条消息携带的唯一 ID，用于关联投递回执
const HeaderMessageID = "message-id"

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	Security SecurityConfig
	// all, leader, none
	Acks              string
	Retries           int
	MaxInFlight       int
	EnableIdempotence bool
	// none, gzip, snappy, lz4, zstd
	Compression            string
	Linger                 time.Duration
	BatchSize              int
	WriteTimeout           time.Duration
	FlushTimeout           time.Duration
	AllowAutoTopicCreation bool
}

// DeliveryReport 投递成功后 broker 返回的位置
type DeliveryReport struct {
	Topic     string
	Key       string
	Partition int
	Offset    int64
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 同步投递的 Kafka 生产者，可被多个 goroutine 并发使用
type Producer struct {
	writer       messageWriter
	writeTimeout time.Duration
	flushTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*DeliveryReport
	closed  bool
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("mq: no brokers configured")
	}

	mechanism, err := cfg.Security.saslMechanism()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}

	acks, err := parseAcks(cfg.Acks)
	if err != nil {
		return nil, err
	}
	if cfg.EnableIdempotence && acks != kafka.RequireAll {
		logger.Warn(context.Background(), "idempotence requested, forcing acks=all", "acks", cfg.Acks)
		acks = kafka.RequireAll
	}
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	p := &Producer{
		writeTimeout: cfg.WriteTimeout,
		flushTimeout: cfg.FlushTimeout,
		pending:      make(map[string]*DeliveryReport),
	}

	w := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers...),
		// 与 librdkafka 默认的 crc32 分区一致，同一 key 始终落在同一分区
		Balancer:               &kafka.CRC32Balancer{},
		RequiredAcks:           acks,
		MaxAttempts:            cfg.Retries + 1,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
		BatchTimeout:           cfg.Linger,
		BatchBytes:             int64(cfg.BatchSize),
		WriteTimeout:           cfg.WriteTimeout,
		Compression:            codec,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Completion:             p.onCompletion,
		Logger:                 kafkaLogger("producer", false),
		ErrorLogger:            kafkaLogger("producer", true),
		Transport: &kafka.Transport{
			ClientID: cfg.ClientID,
			SASL:     mechanism,
			TLS:      tlsCfg,
		},
	}
	p.writer = w

	logger.Info(context.Background(), "kafka producer created",
		"brokers", cfg.Brokers,
		"acks", cfg.Acks,
		"retries", cfg.Retries,
		"compression", cfg.Compression,
		"idempotence", cfg.EnableIdempotence,
		"security", cfg.Security.protocol(),
	)
	if cfg.EnableIdempotence {
		// kafka-go 不支持幂等生产者，重复消息由消费端按 EventId/OrderId 去重
		logger.Info(context.Background(), "broker-side idempotence unavailable, relying on consumer deduplication")
	}
	if cfg.MaxInFlight > 1 {
		logger.Warn(context.Background(), "max_in_flight > 1 ignored, writer keeps one in-flight batch per partition",
			"max_in_flight", cfg.MaxInFlight)
	}
	return p, nil
}

func newProducerWithWriter(w messageWriter, writeTimeout, flushTimeout time.Duration) *Producer {
	return &Producer{
		writer:       w,
		writeTimeout: writeTimeout,
		flushTimeout: flushTimeout,
		pending:      make(map[string]*DeliveryReport),
	}
}

// Publish 同步投递一条消息，返回 broker 分配的分区与偏移量。
// 失败时返回 *DeliveryError
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) (DeliveryReport, error) {
	id := uuid.NewString()
	report := &DeliveryReport{Topic: topic, Key: key, Partition: -1, Offset: -1}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return DeliveryReport{}, classifyDelivery(topic, key, ErrProducerClosed)
	}
	p.pending[id] = report
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderMessageID, Value: []byte(id)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		de := classifyDelivery(topic, key, err)
		logger.Error(ctx, "kafka delivery failed",
			"topic", topic,
			"key", key,
			"code", de.Code,
			"reason", de.Reason,
			"retriable", de.Retriable,
		)
		return DeliveryReport{}, de
	}

	p.mu.Lock()
	out := *report
	p.mu.Unlock()

	logger.Debug(ctx, "kafka message delivered",
		"topic", out.Topic,
		"key", key,
		"partition", out.Partition,
		"offset", out.Offset,
	)
	return out, nil
}

// onCompletion 在 WriteMessages 返回前由 writer 回调，携带分区与偏移量
func (p *Producer) onCompletion(messages []kafka.Message, err error) {
	if err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range messages {
		id := headerValue(m.Headers, HeaderMessageID)
		if r, ok := p.pending[id]; ok {
			r.Topic = m.Topic
			r.Partition = m.Partition
			r.Offset = m.Offset
		}
	}
}

// Close 刷新尚未发送的消息并关闭生产者，超过 FlushTimeout 时放弃等待。
// 刷新失败只记录日志
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- p.writer.Close() }()

	timeout := p.flushTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(ctx, "kafka producer flush failed", "error", err)
			return
		}
		logger.Info(ctx, "kafka producer closed")
	case <-timer.C:
		logger.Error(ctx, "kafka producer flush timed out", "timeout", timeout)
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func parseAcks(acks string) (kafka.RequiredAcks, error) {
	switch strings.ToLower(strings.TrimSpace(acks)) {
	case "", "all", "-1":
		return kafka.RequireAll, nil
	case "leader", "1":
		return kafka.RequireOne, nil
	case "none", "0":
		return kafka.RequireNone, nil
	default:
		return 0, fmt.Errorf("mq: invalid acks %q", acks)
	}
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("mq: unsupported compression %q", name)
	}
}

// kafkaLogger 将 kafka-go 内部日志转到统一 logger
func kafkaLogger(component string, isError bool) kafka.LoggerFunc {
	return func(msg string, args ...any) {
		text := fmt.Sprintf(msg, args...)
		if isError {
			logger.Warn(context.Background(), text, "component", "kafka-"+component)
			return
		}
		logger.Debug(context.Background(), text, "component", "kafka-"+component)
	}
}
