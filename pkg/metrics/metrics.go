// Package metrics 提供订单流水线的 Prometheus 指标
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderpipeline"

// 消费结果标签
const (
	OutcomeIngested  = "ingested"
	OutcomeDuplicate = "duplicate"
	OutcomeSkipped   = "skipped"
	OutcomeMalformed = "malformed"
	OutcomeFailed    = "failed"
)

// 费率来源标签
const (
	FeeSourceCache   = "cache"
	FeeSourceStore   = "store"
	FeeSourceDefault = "default"
)

// Metrics 指标集合，各实例使用独立 registry，便于测试
type Metrics struct {
	registry *prometheus.Registry

	// 生成端
	OrdersGenerated     prometheus.Counter
	ReservationFailures prometheus.Counter
	AvailableStock      prometheus.Gauge
	GeneratorState      *prometheus.GaugeVec
	EventsPublished     prometheus.Counter
	PublishFailures     *prometheus.CounterVec

	// 消费端
	MessagesConsumed  *prometheus.CounterVec
	CommitFailures    prometheus.Counter
	PollErrors        prometheus.Counter
	IngestionDuration prometheus.Histogram
	FeeResolutions    *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New 创建指标实例，subsystem 一般为服务名
func New(subsystem string) *Metrics {
	subsystem = strings.NewReplacer("-", "_", ".", "_").Replace(subsystem)
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OrdersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_generated_total",
			Help:      "Orders successfully reserved and published",
		}),
		ReservationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reservation_failures_total",
			Help:      "Stock reservations rejected",
		}),
		AvailableStock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "available_stock",
			Help:      "Total units of stock still available",
		}),
		GeneratorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generator_state",
			Help:      "1 for the generator's current state, 0 otherwise",
		}, []string{"state"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Order events acknowledged by the broker",
		}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publish_failures_total",
			Help:      "Order event deliveries that failed",
		}, []string{"reason"}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_consumed_total",
			Help:      "Consumed records by outcome",
		}, []string{"outcome"}),
		CommitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commit_failures_total",
			Help:      "Offset commits that failed",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "poll_errors_total",
			Help:      "Errors returned while polling the broker",
		}),
		IngestionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ingestion_duration_seconds",
			Help:      "Time to persist one order with its payment",
			Buckets:   prometheus.DefBuckets,
		}),
		FeeResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_resolutions_total",
			Help:      "Fee percentage lookups by source tier",
		}, []string{"source"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OrdersGenerated,
		m.ReservationFailures,
		m.AvailableStock,
		m.GeneratorState,
		m.EventsPublished,
		m.PublishFailures,
		m.MessagesConsumed,
		m.CommitFailures,
		m.PollErrors,
		m.IngestionDuration,
		m.FeeResolutions,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry 返回底层 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetGeneratorState 仅将当前状态置 1
func (m *Metrics) SetGeneratorState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.GeneratorState.WithLabelValues(s).Set(v)
	}
}
