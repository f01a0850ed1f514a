package application

import (
	"context"

	feeapp "github.com/wyfcoding/orderpipeline/internal/feemanagement/application"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
)

// OrderIngestionService 校验订单事件、计算手续费并交给处理服务落库
type OrderIngestionService struct {
	fees      feeapp.FeeCalculator
	processor *OrderProcessingService
}

func NewOrderIngestionService(fees feeapp.FeeCalculator, processor *OrderProcessingService) *OrderIngestionService {
	return &OrderIngestionService{fees: fees, processor: processor}
}

// Ingest 违反业务规则时返回 domain.ErrBusinessRule，其余错误可重试
func (s *OrderIngestionService) Ingest(ctx context.Context, event *domain.OrderSubmittedEvent) (*ProcessResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	order, payment := s.Map(ctx, event)
	return s.processor.ProcessOrderWithPayment(ctx, order, payment)
}

// Map 将事件映射为新的订单与支付记录，每次调用都返回新对象
func (s *OrderIngestionService) Map(ctx context.Context, event *domain.OrderSubmittedEvent) (*domain.Order, *domain.Payment) {
	pct, fee := s.fees.CalculateFee(ctx, event.Payment.PaymentMethod, event.TotalAmount)
	return domain.NewOrderFromEvent(event), domain.NewPaymentFromEvent(event, pct, fee)
}
