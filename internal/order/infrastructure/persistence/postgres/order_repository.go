package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/db"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储，写操作自动加入 ctx 中的事务
func NewOrderRepository(gdb *gorm.DB) domain.OrderRepository {
	return &orderRepository{db: gdb}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	m, err := toOrderModel(order)
	if err != nil {
		return err
	}
	if err := db.Conn(ctx, r.db).Omit(clause.Associations).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("order %s / event %s: %w", order.OrderID, order.EventID, domain.ErrDuplicateOrder)
		}
		logger.Error(ctx, "order_repository.create failed", "order_id", order.OrderID, "error", err)
		return fmt.Errorf("create order %s: %w", order.OrderID, err)
	}
	order.ID = m.ID
	return nil
}

func (r *orderRepository) FindWithPayment(ctx context.Context, orderID, eventID string) (*domain.Order, error) {
	return r.first(ctx, "order_id = ? OR event_id = ?", orderID, eventID)
}

func (r *orderRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.first(ctx, "order_id = ?", orderID)
}

func (r *orderRepository) FindByEventID(ctx context.Context, eventID string) (*domain.Order, error) {
	return r.first(ctx, "event_id = ?", eventID)
}

func (r *orderRepository) first(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var m OrderModel
	err := db.Conn(ctx, r.db).Preload("Payment").Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	return toOrder(&m)
}

func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Order, error) {
	var models []*OrderModel
	if err := db.Conn(ctx, r.db).Preload("Payment").Order("processed_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list recent orders: %w", err)
	}
	return toOrders(models)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*domain.Order, error) {
	var models []*OrderModel
	err := db.Conn(ctx, r.db).Preload("Payment").
		Where("customer_id = ?", customerID).
		Order("order_date DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list orders of %s: %w", customerID, err)
	}
	return toOrders(models)
}

func toOrders(models []*OrderModel) ([]*domain.Order, error) {
	out := make([]*domain.Order, 0, len(models))
	for _, m := range models {
		o, err := toOrder(m)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
