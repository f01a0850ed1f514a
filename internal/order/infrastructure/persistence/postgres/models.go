// Package postgres 提供订单与支付仓储的 GORM 实现，驱动由 pkg/db 决定
package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
)

// OrderModel orders 表映射，商品行以 JSON 快照保存
type OrderModel struct {
	ID                 uint            `gorm:"primaryKey;autoIncrement"`
	OrderID            string          `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null"`
	CustomerID         string          `gorm:"column:customer_id;type:varchar(32);index;not null"`
	CustomerEmail      string          `gorm:"column:customer_email;type:varchar(255)"`
	OrderDate          time.Time       `gorm:"column:order_date;not null"`
	TotalAmount        decimal.Decimal `gorm:"column:total_amount;type:decimal(18,2);not null"`
	Currency           string          `gorm:"column:currency;type:varchar(3);not null"`
	Status             string          `gorm:"column:status;type:varchar(20);not null"`
	ShippingFirstName  string          `gorm:"column:shipping_first_name;type:varchar(100)"`
	ShippingLastName   string          `gorm:"column:shipping_last_name;type:varchar(100)"`
	ShippingStreet     string          `gorm:"column:shipping_street;type:varchar(255)"`
	ShippingCity       string          `gorm:"column:shipping_city;type:varchar(100)"`
	ShippingState      string          `gorm:"column:shipping_state;type:varchar(100)"`
	ShippingPostalCode string          `gorm:"column:shipping_postal_code;type:varchar(20)"`
	ShippingCountry    string          `gorm:"column:shipping_country;type:varchar(2)"`
	EventID            string          `gorm:"column:event_id;type:varchar(64);uniqueIndex;not null"`
	EventTimestamp     time.Time       `gorm:"column:event_timestamp;not null"`
	ProcessedAt        time.Time       `gorm:"column:processed_at;index;not null"`
	ItemsJSON          datatypes.JSON  `gorm:"column:items_json"`
	Payment            *PaymentModel   `gorm:"foreignKey:OrderID;references:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// PaymentModel payments 表映射，order_id 外键指向 orders.order_id
type PaymentModel struct {
	ID              uint            `gorm:"primaryKey;autoIncrement"`
	OrderID         string          `gorm:"column:order_id;type:varchar(64);uniqueIndex;not null"`
	PaymentMethod   string          `gorm:"column:payment_method;type:varchar(50);not null"`
	PaymentProvider string          `gorm:"column:payment_provider;type:varchar(50)"`
	TransactionID   string          `gorm:"column:transaction_id;type:varchar(64);uniqueIndex;not null"`
	Status          string          `gorm:"column:status;type:varchar(20);index;not null"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null"`
	FeePercentage   decimal.Decimal `gorm:"column:fee_percentage;type:decimal(5,3);not null"`
	FeeAmount       decimal.Decimal `gorm:"column:fee_amount;type:decimal(18,2);not null"`
	ProcessedAt     time.Time       `gorm:"column:processed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;index;not null"`
}

func (PaymentModel) TableName() string { return "payments" }

// AutoMigrate 创建订单与支付表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&OrderModel{}, &PaymentModel{})
}

func toOrderModel(o *domain.Order) (*OrderModel, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items of %s: %w", o.OrderID, err)
	}
	return &OrderModel{
		ID:                 o.ID,
		OrderID:            o.OrderID,
		CustomerID:         o.CustomerID,
		CustomerEmail:      o.CustomerEmail,
		OrderDate:          o.OrderDate,
		TotalAmount:        o.TotalAmount,
		Currency:           o.Currency,
		Status:             o.Status,
		ShippingFirstName:  o.Shipping.FirstName,
		ShippingLastName:   o.Shipping.LastName,
		ShippingStreet:     o.Shipping.Street,
		ShippingCity:       o.Shipping.City,
		ShippingState:      o.Shipping.State,
		ShippingPostalCode: o.Shipping.PostalCode,
		ShippingCountry:    o.Shipping.Country,
		EventID:            o.EventID,
		EventTimestamp:     o.EventTimestamp,
		ProcessedAt:        o.ProcessedAt,
		ItemsJSON:          datatypes.JSON(items),
	}, nil
}

func toOrder(m *OrderModel) (*domain.Order, error) {
	var items []domain.OrderItem
	if len(m.ItemsJSON) > 0 {
		if err := json.Unmarshal(m.ItemsJSON, &items); err != nil {
			return nil, fmt.Errorf("decode items of %s: %w", m.OrderID, err)
		}
	}
	o := &domain.Order{
		ID:            m.ID,
		OrderID:       m.OrderID,
		CustomerID:    m.CustomerID,
		CustomerEmail: m.CustomerEmail,
		OrderDate:     m.OrderDate,
		TotalAmount:   m.TotalAmount,
		Currency:      m.Currency,
		Status:        m.Status,
		Shipping: domain.ShippingAddress{
			FirstName:  m.ShippingFirstName,
			LastName:   m.ShippingLastName,
			Street:     m.ShippingStreet,
			City:       m.ShippingCity,
			State:      m.ShippingState,
			PostalCode: m.ShippingPostalCode,
			Country:    m.ShippingCountry,
		},
		Items:          items,
		EventID:        m.EventID,
		EventTimestamp: m.EventTimestamp,
		ProcessedAt:    m.ProcessedAt,
	}
	if m.Payment != nil {
		o.Payment = toPayment(m.Payment)
	}
	return o, nil
}

func toPaymentModel(p *domain.Payment) *PaymentModel {
	return &PaymentModel{
		ID:              p.ID,
		OrderID:         p.OrderID,
		PaymentMethod:   p.PaymentMethod,
		PaymentProvider: p.PaymentProvider,
		TransactionID:   p.TransactionID,
		Status:          p.Status,
		Amount:          p.Amount,
		FeePercentage:   p.FeePercentage,
		FeeAmount:       p.FeeAmount,
		ProcessedAt:     p.ProcessedAt,
		CreatedAt:       p.CreatedAt,
	}
}

func toPayment(m *PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:              m.ID,
		OrderID:         m.OrderID,
		PaymentMethod:   m.PaymentMethod,
		PaymentProvider: m.PaymentProvider,
		TransactionID:   m.TransactionID,
		Status:          m.Status,
		Amount:          m.Amount,
		FeePercentage:   m.FeePercentage,
		FeeAmount:       m.FeeAmount,
		ProcessedAt:     m.ProcessedAt,
		CreatedAt:       m.CreatedAt,
	}
}
