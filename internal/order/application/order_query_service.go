package application

import (
	"context"
	"time"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
)

// OrderDTO 订单查询结果
type OrderDTO struct {
	OrderID         string                 `json:"orderId"`
	CustomerID      string                 `json:"customerId"`
	CustomerEmail   string                 `json:"customerEmail"`
	OrderDate       time.Time              `json:"orderDate"`
	TotalAmount     string                 `json:"totalAmount"`
	Currency        string                 `json:"currency"`
	Status          string                 `json:"status"`
	Items           []domain.OrderItem     `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	EventID         string                 `json:"eventId"`
	ProcessedAt     time.Time              `json:"processedAt"`
	Payment         *PaymentDTO            `json:"payment,omitempty"`
}

// OrderQueryService 订单只读查询
type OrderQueryService struct {
	orders domain.OrderRepository
	limits QueryLimits
}

func NewOrderQueryService(orders domain.OrderRepository, limits QueryLimits) *OrderQueryService {
	if limits.DefaultCount <= 0 {
		limits.DefaultCount = DefaultRecentPaymentsCount
	}
	if limits.MaxCount <= 0 {
		limits.MaxCount = DefaultMaxQueryCount
	}
	return &OrderQueryService{orders: orders, limits: limits}
}

func (s *OrderQueryService) GetOrder(ctx context.Context, orderID string) (*OrderDTO, error) {
	o, err := s.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := toOrderDTO(o)
	return &dto, nil
}

func (s *OrderQueryService) RecentOrders(ctx context.Context, count int) ([]OrderDTO, error) {
	orders, err := s.orders.ListRecent(ctx, s.limits.normalize(count))
	if err != nil {
		return nil, err
	}
	return toOrderDTOs(orders), nil
}

func (s *OrderQueryService) CustomerOrders(ctx context.Context, customerID string, count int) ([]OrderDTO, error) {
	orders, err := s.orders.ListByCustomer(ctx, customerID, s.limits.normalize(count))
	if err != nil {
		return nil, err
	}
	return toOrderDTOs(orders), nil
}

func toOrderDTOs(orders []*domain.Order) []OrderDTO {
	out := make([]OrderDTO, len(orders))
	for i, o := range orders {
		out[i] = toOrderDTO(o)
	}
	return out
}

func toOrderDTO(o *domain.Order) OrderDTO {
	dto := OrderDTO{
		OrderID:         o.OrderID,
		CustomerID:      o.CustomerID,
		CustomerEmail:   o.CustomerEmail,
		OrderDate:       o.OrderDate,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Currency:        o.Currency,
		Status:          o.Status,
		Items:           o.Items,
		ShippingAddress: o.Shipping,
		EventID:         o.EventID,
		ProcessedAt:     o.ProcessedAt,
	}
	if o.Payment != nil {
		p := toPaymentDTO(o.Payment)
		dto.Payment = &p
	}
	return dto
}
