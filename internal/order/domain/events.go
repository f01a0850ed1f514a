package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventVersion 当前订单事件版本
const EventVersion = "1.0"

// OrderSubmittedEvent 订单提交事件，写入 order-events 主题，key 为 OrderID。
// 金额字段以 JSON 字符串编码，解码同时接受字符串与数字
type OrderSubmittedEvent struct {
	OrderID         string          `json:"orderId"`
	CustomerID      string          `json:"customerId"`
	CustomerEmail   string          `json:"customerEmail"`
	OrderDate       time.Time       `json:"orderDate"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Payment         PaymentInfo     `json:"payment"`
	Status          string          `json:"status"`
	EventTimestamp  time.Time       `json:"eventTimestamp"`
	EventID         string          `json:"eventId"`
	EventVersion    string          `json:"eventVersion"`
}

// OrderItem 订单行，同时作为订单落库时的商品快照
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Sku         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Category    string          `json:"category"`
}

// ShippingAddress 收货地址
type ShippingAddress struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// PaymentInfo 事件中的支付信息
type PaymentInfo struct {
	PaymentMethod   string    `json:"paymentMethod"`
	PaymentProvider string    `json:"paymentProvider"`
	TransactionID   string    `json:"transactionId"`
	ProcessedAt     time.Time `json:"processedAt"`
	Status          string    `json:"status"`
}

// LineTotal 单价乘数量，四舍五入到 2 位小数
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// SumItems 各行 TotalPrice 之和，四舍五入到 2 位小数
func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total.Round(2)
}

// Marshal 编码为 UTF-8 JSON，字段顺序固定
func (e *OrderSubmittedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalOrderSubmittedEvent 解码事件，字段名大小写不敏感
func UnmarshalOrderSubmittedEvent(data []byte) (*OrderSubmittedEvent, error) {
	var e OrderSubmittedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate 校验事件的业务规则，违反时返回 *BusinessRuleError
func (e *OrderSubmittedEvent) Validate() error {
	switch {
	case strings.TrimSpace(e.OrderID) == "":
		return NewBusinessRuleError("order_id_required", "orderId is empty")
	case strings.TrimSpace(e.EventID) == "":
		return NewBusinessRuleError("event_id_required", "eventId is empty (order %s)", e.OrderID)
	case strings.TrimSpace(e.Payment.TransactionID) == "":
		return NewBusinessRuleError("transaction_id_required", "payment.transactionId is empty (order %s)", e.OrderID)
	case e.EventVersion != "" && e.EventVersion != EventVersion:
		return NewBusinessRuleError("unsupported_version", "eventVersion %q is not supported", e.EventVersion)
	case len(e.Items) == 0:
		return NewBusinessRuleError("items_required", "order %s has no items", e.OrderID)
	}

	for i, it := range e.Items {
		if it.Quantity <= 0 {
			return NewBusinessRuleError("quantity_positive", "item %d (%s) has quantity %d", i, it.ProductID, it.Quantity)
		}
		if want := LineTotal(it.UnitPrice, it.Quantity); !it.TotalPrice.Equal(want) {
			return NewBusinessRuleError("line_total", "item %d (%s) totalPrice %s, expected %s",
				i, it.ProductID, it.TotalPrice, want)
		}
	}
	if want := SumItems(e.Items); !e.TotalAmount.Equal(want) {
		return NewBusinessRuleError("order_total", "totalAmount %s, expected %s", e.TotalAmount, want)
	}
	return nil
}

// String 用于日志
func (e *OrderSubmittedEvent) String() string {
	return fmt.Sprintf("order=%s event=%s total=%s %s items=%d", e.OrderID, e.EventID, e.TotalAmount, e.Currency, len(e.Items))
}

// PublishReceipt 投递回执
type PublishReceipt struct {
	Topic     string
	Partition int
	Offset    int64
}

// EventPublisher 订单事件发布者
type EventPublisher interface {
	// PublishOrderSubmitted 以 OrderID 为 key 发布事件，返回 broker 分配的位置
	PublishOrderSubmitted(ctx context.Context, event *OrderSubmittedEvent) (PublishReceipt, error)
}
