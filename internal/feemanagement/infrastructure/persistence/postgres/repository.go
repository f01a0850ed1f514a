package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/orderpipeline/internal/feemanagement/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// PaymentMethodFeeModel 支付方式费率表
type PaymentMethodFeeModel struct {
	ID            uint            `gorm:"primaryKey"`
	PaymentMethod string          `gorm:"column:payment_method;type:varchar(50);uniqueIndex;not null"`
	FeePercentage decimal.Decimal `gorm:"column:fee_percentage;type:decimal(5,3);not null"`
	IsActive      bool            `gorm:"column:is_active;not null;default:true;index"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;not null"`
}

func (PaymentMethodFeeModel) TableName() string { return "payment_method_fees" }

type feeRepository struct {
	db *gorm.DB
}

func NewFeeRepository(db *gorm.DB) domain.FeeRepository {
	return &feeRepository{db: db}
}

// AutoMigrate 创建费率表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&PaymentMethodFeeModel{})
}

func (r *feeRepository) GetActiveFee(ctx context.Context, paymentMethod string) (*domain.PaymentMethodFee, error) {
	var m PaymentMethodFeeModel
	err := r.db.WithContext(ctx).
		Where("payment_method = ? AND is_active = ?", paymentMethod, true).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrFeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fee %s: %w", paymentMethod, err)
	}
	return toDomain(&m), nil
}

func (r *feeRepository) ListActive(ctx context.Context) ([]*domain.PaymentMethodFee, error) {
	var models []*PaymentMethodFeeModel
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("payment_method").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	res := make([]*domain.PaymentMethodFee, len(models))
	for i, m := range models {
		res[i] = toDomain(m)
	}
	return res, nil
}

func (r *feeRepository) Upsert(ctx context.Context, fee *domain.PaymentMethodFee) error {
	now := time.Now().UTC()
	m := &PaymentMethodFeeModel{
		PaymentMethod: fee.PaymentMethod,
		FeePercentage: fee.FeePercentage.Round(3),
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_method"}},
		DoUpdates: clause.AssignmentColumns([]string{"fee_percentage", "is_active", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		logger.Error(ctx, "fee_repository.upsert failed", "payment_method", fee.PaymentMethod, "error", err)
		return fmt.Errorf("upsert fee %s: %w", fee.PaymentMethod, err)
	}
	fee.IsActive = true
	fee.UpdatedAt = now
	return nil
}

func (r *feeRepository) Deactivate(ctx context.Context, paymentMethod string) error {
	res := r.db.WithContext(ctx).Model(&PaymentMethodFeeModel{}).
		Where("payment_method = ? AND is_active = ?", paymentMethod, true).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("deactivate fee %s: %w", paymentMethod, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrFeeNotFound
	}
	return nil
}

func (r *feeRepository) SeedDefaults(ctx context.Context) error {
	now := time.Now().UTC()
	defaults := domain.DefaultFees()
	models := make([]PaymentMethodFeeModel, 0, len(defaults))
	for _, f := range defaults {
		models = append(models, PaymentMethodFeeModel{
			PaymentMethod: f.PaymentMethod,
			FeePercentage: f.FeePercentage,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&models)
	if res.Error != nil {
		return fmt.Errorf("seed default fees: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Info(ctx, "seeded default payment method fees", "count", res.RowsAffected)
	}
	return nil
}

func toDomain(m *PaymentMethodFeeModel) *domain.PaymentMethodFee {
	return &domain.PaymentMethodFee{
		ID:            m.ID,
		PaymentMethod: m.PaymentMethod,
		FeePercentage: m.FeePercentage,
		IsActive:      m.IsActive,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
