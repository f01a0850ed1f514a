package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/db"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付仓储
func NewPaymentRepository(gdb *gorm.DB) domain.PaymentRepository {
	return &paymentRepository{db: gdb}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	m := toPaymentModel(payment)
	if err := db.Conn(ctx, r.db).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("payment %s / transaction %s: %w", payment.OrderID, payment.TransactionID, domain.ErrDuplicateOrder)
		}
		logger.Error(ctx, "payment_repository.create failed", "order_id", payment.OrderID, "error", err)
		return fmt.Errorf("create payment %s: %w", payment.OrderID, err)
	}
	payment.ID = m.ID
	return nil
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.first(ctx, "order_id = ?", orderID)
}

func (r *paymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	return r.first(ctx, "transaction_id = ?", transactionID)
}

func (r *paymentRepository) first(ctx context.Context, query string, args ...any) (*domain.Payment, error) {
	var m PaymentModel
	err := db.Conn(ctx, r.db).Where(query, args...).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return toPayment(&m), nil
}

func (r *paymentRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Payment, error) {
	var models []*PaymentModel
	if err := db.Conn(ctx, r.db).Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list recent payments: %w", err)
	}
	return toPayments(models), nil
}

func (r *paymentRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*domain.Payment, error) {
	var models []*PaymentModel
	err := db.Conn(ctx, r.db).
		Where("status = ?", status).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list %s payments: %w", status, err)
	}
	return toPayments(models), nil
}

func toPayments(models []*PaymentModel) []*domain.Payment {
	out := make([]*domain.Payment, len(models))
	for i, m := range models {
		out[i] = toPayment(m)
	}
	return out
}
