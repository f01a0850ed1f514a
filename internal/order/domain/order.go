// Package domain 包含订单与支付的领域模型、订单事件契约及仓储接口
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 订单状态
const (
	OrderStatusSubmitted = "Submitted"
)

// 支付状态
const (
	PaymentStatusCompleted = "Completed"
	PaymentStatusPending   = "Pending"
	PaymentStatusFailed    = "Failed"
)

// Order 已落库的订单。
// OrderID 与 EventID 各自唯一，落库后除 ProcessedAt 外不再修改
type Order struct {
	ID             uint
	OrderID        string
	CustomerID     string
	CustomerEmail  string
	OrderDate      time.Time
	TotalAmount    decimal.Decimal
	Currency       string
	Status         string
	Shipping       ShippingAddress
	Items          []OrderItem
	EventID        string
	EventTimestamp time.Time
	ProcessedAt    time.Time
	Payment        *Payment
}

// Payment 与订单一对一，和订单在同一事务中创建。TransactionID 唯一
type Payment struct {
	ID              uint
	OrderID         string
	PaymentMethod   string
	PaymentProvider string
	TransactionID   string
	Status          string
	Amount          decimal.Decimal
	FeePercentage   decimal.Decimal
	FeeAmount       decimal.Decimal
	ProcessedAt     time.Time
	CreatedAt       time.Time
}

// OrderRepository 订单仓储
type OrderRepository interface {
	// Create 插入订单，OrderID 或 EventID 冲突时返回 ErrDuplicateOrder
	Create(ctx context.Context, order *Order) error
	// FindWithPayment 按 OrderID 或 EventID 查找订单并加载支付记录，不存在时返回 ErrOrderNotFound
	FindWithPayment(ctx context.Context, orderID, eventID string) (*Order, error)
	FindByOrderID(ctx context.Context, orderID string) (*Order, error)
	FindByEventID(ctx context.Context, eventID string) (*Order, error)
	// ListRecent 按 ProcessedAt 倒序
	ListRecent(ctx context.Context, limit int) ([]*Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error)
}

// PaymentRepository 支付仓储
type PaymentRepository interface {
	// Create 插入支付记录，OrderID 或 TransactionID 冲突时返回 ErrDuplicateOrder
	Create(ctx context.Context, payment *Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	// ListRecent 按 CreatedAt 倒序
	ListRecent(ctx context.Context, limit int) ([]*Payment, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*Payment, error)
}

// TransactionManager 在单个事务中执行 fn，fn 返回错误时整体回滚
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewOrderFromEvent 将事件映射为待落库订单，ProcessedAt 在保存时设置
func NewOrderFromEvent(e *OrderSubmittedEvent) *Order {
	items := make([]OrderItem, len(e.Items))
	copy(items, e.Items)
	return &Order{
		OrderID:        e.OrderID,
		CustomerID:     e.CustomerID,
		CustomerEmail:  e.CustomerEmail,
		OrderDate:      e.OrderDate.UTC(),
		TotalAmount:    e.TotalAmount,
		Currency:       e.Currency,
		Status:         e.Status,
		Shipping:       e.ShippingAddress,
		Items:          items,
		EventID:        e.EventID,
		EventTimestamp: e.EventTimestamp.UTC(),
	}
}

// NewPaymentFromEvent 将事件中的支付信息映射为支付记录，金额为订单总额
func NewPaymentFromEvent(e *OrderSubmittedEvent, feePercentage, feeAmount decimal.Decimal) *Payment {
	return &Payment{
		OrderID:         e.OrderID,
		PaymentMethod:   e.Payment.PaymentMethod,
		PaymentProvider: e.Payment.PaymentProvider,
		TransactionID:   e.Payment.TransactionID,
		Status:          e.Payment.Status,
		Amount:          e.TotalAmount,
		FeePercentage:   feePercentage,
		FeeAmount:       feeAmount,
		ProcessedAt:     e.Payment.ProcessedAt.UTC(),
	}
}
