// Package application 包含订单生成、落库与查询用例
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
)

// ProcessResult 落库结果。Duplicate 为 true 时 Order/Payment 为已存在的记录
type ProcessResult struct {
	Order     *domain.Order
	Payment   *domain.Payment
	Duplicate bool
}

// OrderProcessingService 订单与支付的幂等落库。
// 先按 OrderID/EventID 预检查，再在单个事务中写入两条记录；
// 并发重复由存储层唯一约束拒绝，并按“已存在”处理
type OrderProcessingService struct {
	tx       domain.TransactionManager
	orders   domain.OrderRepository
	payments domain.PaymentRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrderProcessingService m 可为 nil
func NewOrderProcessingService(tx domain.TransactionManager, orders domain.OrderRepository, payments domain.PaymentRepository, m *metrics.Metrics) *OrderProcessingService {
	return &OrderProcessingService{
		tx:       tx,
		orders:   orders,
		payments: payments,
		metrics:  m,
		logger:   logger.With("component", "order_processing"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessOrderWithPayment 保存订单及其支付记录。重复投递返回已有记录且不写入
func (s *OrderProcessingService) ProcessOrderWithPayment(ctx context.Context, order *domain.Order, payment *domain.Payment) (*ProcessResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.IngestionDuration.Observe(time.Since(start).Seconds())
		}
	}()

	existing, err := s.orders.FindWithPayment(ctx, order.OrderID, order.EventID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "order already exists, returning existing record",
			"order_id", order.OrderID, "event_id", order.EventID)
		return &ProcessResult{Order: existing, Payment: existing.Payment, Duplicate: true}, nil
	case !errors.Is(err, domain.ErrOrderNotFound):
		return nil, fmt.Errorf("dedup check for %s: %w", order.OrderID, err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		// 回滚后重试时不能带上已失效的自增 ID
		order.ID, payment.ID = 0, 0
		order.ProcessedAt = now
		payment.CreatedAt = now
		payment.OrderID = order.OrderID

		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "order saved in transaction", "order_id", order.OrderID, "id", order.ID)

		if err := s.payments.Create(ctx, payment); err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "payment saved in transaction",
			"order_id", payment.OrderID, "transaction_id", payment.TransactionID, "id", payment.ID)
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateOrder) {
		return s.resolveDuplicate(ctx, order, payment, err), nil
	}
	if err != nil {
		return nil, fmt.Errorf("persist order %s: %w", order.OrderID, err)
	}

	order.Payment = payment
	s.logger.InfoContext(ctx, "order and payment committed",
		"order_id", order.OrderID,
		"transaction_id", payment.TransactionID,
		"amount", payment.Amount.String(),
		"fee_amount", payment.FeeAmount.String(),
	)
	return &ProcessResult{Order: order, Payment: payment}, nil
}

// resolveDuplicate 事务因唯一约束回滚后，查出占用该键的已有记录
func (s *OrderProcessingService) resolveDuplicate(ctx context.Context, order *domain.Order, payment *domain.Payment, cause error) *ProcessResult {
	s.logger.WarnContext(ctx, "concurrent duplicate rejected by unique constraint",
		"order_id", order.OrderID,
		"event_id", order.EventID,
		"transaction_id", payment.TransactionID,
		"cause", cause,
	)

	if existing, err := s.orders.FindWithPayment(ctx, order.OrderID, order.EventID); err == nil {
		return &ProcessResult{Order: existing, Payment: existing.Payment, Duplicate: true}
	}

	// 交易号冲突但订单号不同
	if p, err := s.payments.FindByTransactionID(ctx, payment.TransactionID); err == nil {
		if o, err := s.orders.FindByOrderID(ctx, p.OrderID); err == nil {
			o.Payment = p
			return &ProcessResult{Order: o, Payment: p, Duplicate: true}
		}
		return &ProcessResult{Order: order, Payment: p, Duplicate: true}
	}

	s.logger.WarnContext(ctx, "duplicate owner not found", "order_id", order.OrderID)
	return &ProcessResult{Order: order, Payment: payment, Duplicate: true}
}
