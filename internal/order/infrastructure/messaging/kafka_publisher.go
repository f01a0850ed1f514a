// Package messaging 将订单事件发布到 Kafka
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
	"github.com/wyfcoding/orderpipeline/pkg/mq"
)

// Producer 由 *mq.Producer 实现
type Producer interface {
	Publish(ctx context.Context, topic, key string, value []byte) (mq.DeliveryReport, error)
}

// BreakerConfig 熔断参数
type BreakerConfig struct {
	// 连续失败次数达到该值后熔断
	ConsecutiveFailures uint32
	// 熔断后经过 OpenTimeout 进入半开
	OpenTimeout time.Duration
}

// KafkaOrderEventPublisher 以 OrderID 为 key 发布订单事件，broker 持续不可用时快速失败
type KafkaOrderEventPublisher struct {
	producer Producer
	topic    string
	breaker  *gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
}

// NewKafkaOrderEventPublisher m 可为 nil
func NewKafkaOrderEventPublisher(producer Producer, topic string, cfg BreakerConfig, m *metrics.Metrics) *KafkaOrderEventPublisher {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	p := &KafkaOrderEventPublisher{producer: producer, topic: topic, metrics: m}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-" + topic,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "publisher circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

func (p *KafkaOrderEventPublisher) PublishOrderSubmitted(ctx context.Context, event *domain.OrderSubmittedEvent) (domain.PublishReceipt, error) {
	payload, err := event.Marshal()
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("encode %s: %w", event.OrderID, err)
	}

	res, err := p.breaker.Execute(func() (any, error) {
		return p.producer.Publish(ctx, p.topic, event.OrderID, payload)
	})
	if err != nil {
		p.observeFailure(err)
		return domain.PublishReceipt{}, err
	}

	report := res.(mq.DeliveryReport)
	if p.metrics != nil {
		p.metrics.EventsPublished.Inc()
	}
	logger.Info(ctx, "order event delivered",
		"topic", report.Topic,
		"partition", report.Partition,
		"offset", report.Offset,
		"key", report.Key,
	)
	return domain.PublishReceipt{Topic: report.Topic, Partition: report.Partition, Offset: report.Offset}, nil
}

func (p *KafkaOrderEventPublisher) observeFailure(err error) {
	if p.metrics == nil {
		return
	}
	reason := "other"
	var de *mq.DeliveryError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		reason = "circuit_open"
	case errors.As(err, &de) && de.Code != 0:
		reason = fmt.Sprintf("kafka_%d", de.Code)
	case errors.As(err, &de) && de.Retriable:
		reason = "retriable"
	}
	p.metrics.PublishFailures.WithLabelValues(reason).Inc()
}
