package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/order/application"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
)

type fetchResult struct {
	msg kafka.Message
	err error
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []fetchResult
	committed []int64
	closed    bool
	onDrain   func()
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return next.msg, next.err
	}
	drain := r.onDrain
	r.onDrain = nil
	r.mu.Unlock()
	if drain != nil {
		drain()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeIngestor struct {
	mu     sync.Mutex
	events []*domain.OrderSubmittedEvent
	err    error
}

func (f *fakeIngestor) Ingest(_ context.Context, e *domain.OrderSubmittedEvent) (*application.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	if f.err != nil {
		return nil, f.err
	}
	order := domain.NewOrderFromEvent(e)
	payment := domain.NewPaymentFromEvent(e, decimal.RequireFromString("1.5"), decimal.RequireFromString("0.16"))
	return &application.ProcessResult{Order: order, Payment: payment}, nil
}

func validMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	price := decimal.RequireFromString("10.50")
	e := &domain.OrderSubmittedEvent{
		OrderID:     "ORD-20250101-42",
		EventID:     "evt-42",
		TotalAmount: price,
		Currency:    "SEK",
		Items: []domain.OrderItem{{
			ProductID: "PROD-1001", Quantity: 1, UnitPrice: price, TotalPrice: price,
		}},
		Payment:      domain.PaymentInfo{PaymentMethod: "PayPal", TransactionID: "TXN-0000AAAA"},
		EventVersion: domain.EventVersion,
	}
	value, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return kafka.Message{Topic: "order-events", Partition: 0, Offset: offset, Key: []byte(e.OrderID), Value: value}
}

type harness struct {
	reader   *fakeReader
	ingestor *fakeIngestor
	consumer *OrderConsumer
	sleeps   []time.Duration
	cancel   context.CancelFunc
	ctx      context.Context
}

func newHarness(cfg Config, queue ...fetchResult) *harness {
	h := &harness{reader: &fakeReader{queue: queue}, ingestor: &fakeIngestor{}}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.reader.onDrain = h.cancel
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 50 * time.Millisecond
	}
	h.consumer = NewOrderConsumer(cfg, h.reader, h.ingestor, metrics.New("test"))
	h.consumer.sleep = func(ctx context.Context, d time.Duration) bool {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err() == nil
	}
	return h
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.consumer.Run(h.ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		h.cancel()
		t.Fatal("consumer did not stop")
		return nil
	}
}

func TestMalformedThenValidStillIngests(t *testing.T) {
	h := newHarness(Config{},
		fetchResult{msg: kafka.Message{Topic: "order-events", Offset: 0, Value: []byte("{not json")}},
		fetchResult{msg: validMessage(t, 1)},
	)

	if err := h.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.ingestor.events) != 1 || h.ingestor.events[0].OrderID != "ORD-20250101-42" {
		t.Fatalf("ingested %d events", len(h.ingestor.events))
	}
	if len(h.reader.committed) != 1 || h.reader.committed[0] != 1 {
		t.Fatalf("committed = %v, want [1]", h.reader.committed)
	}
	if !h.reader.closed {
		t.Fatal("reader should be closed on exit")
	}
	if h.consumer.State() != StateStopped {
		t.Fatalf("state = %s", h.consumer.State())
	}
}

func TestBusinessRuleRejectionIsCommittedNotRetried(t *testing.T) {
	h := newHarness(Config{MaxProcessingAttempts: 3}, fetchResult{msg: validMessage(t, 7)})
	h.ingestor.err = domain.NewBusinessRuleError("order_total", "mismatch")

	if err := h.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.ingestor.events) != 1 {
		t.Fatalf("business rejection retried %d times", len(h.ingestor.events))
	}
	if len(h.reader.committed) != 1 || h.reader.committed[0] != 7 {
		t.Fatalf("committed = %v, want [7]", h.reader.committed)
	}
}

func TestTransientFailureRetriedThenLeftUncommitted(t *testing.T) {
	h := newHarness(Config{MaxProcessingAttempts: 3, RetryBackoff: 5 * time.Second}, fetchResult{msg: validMessage(t, 3)})
	h.ingestor.err = errors.New("database unavailable")

	if err := h.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.ingestor.events) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.ingestor.events))
	}
	if len(h.sleeps) != 2 || h.sleeps[0] != 5*time.Second {
		t.Fatalf("sleeps = %v, want two 5s backoffs", h.sleeps)
	}
	if len(h.reader.committed) != 0 {
		t.Fatalf("failed message must stay uncommitted, committed = %v", h.reader.committed)
	}
}

func TestAutoCommitCommitsOnReceipt(t *testing.T) {
	h := newHarness(Config{EnableAutoCommit: true, MaxProcessingAttempts: 1}, fetchResult{msg: validMessage(t, 9)})
	h.ingestor.err = errors.New("database unavailable")

	if err := h.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.reader.committed) != 1 || h.reader.committed[0] != 9 {
		t.Fatalf("committed = %v, want [9]", h.reader.committed)
	}
}

func TestFatalErrorStopsLoop(t *testing.T) {
	h := newHarness(Config{}, fetchResult{err: io.EOF}, fetchResult{msg: validMessage(t, 1)})

	err := h.run(t)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Run err = %v, want io.EOF", err)
	}
	if len(h.ingestor.events) != 0 {
		t.Fatal("loop must stop before later messages")
	}
	if !h.reader.closed {
		t.Fatal("reader should be closed after fatal error")
	}
}

func TestPollErrorsClassified(t *testing.T) {
	h := newHarness(Config{RetryBackoff: 5 * time.Second},
		fetchResult{err: kafka.RebalanceInProgress},
		fetchResult{err: errors.New("connection reset")},
		fetchResult{msg: validMessage(t, 2)},
	)

	if err := h.run(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 5*time.Second {
		t.Fatalf("sleeps = %v, only the unclassified error should back off", h.sleeps)
	}
	if len(h.ingestor.events) != 1 {
		t.Fatalf("valid message not ingested after poll errors")
	}
}
