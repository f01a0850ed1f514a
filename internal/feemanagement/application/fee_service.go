package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/feemanagement/domain"
	"github.com/wyfcoding/orderpipeline/pkg/cache"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// ErrInvalidFee 费率不在 [0, 100) 区间
var ErrInvalidFee = errors.New("fee percentage must be within [0, 100)")

// FeeDTO 费率查询结果
type FeeDTO struct {
	PaymentMethod string `json:"paymentMethod"`
	FeePercentage string `json:"feePercentage"`
	IsActive      bool   `json:"isActive"`
	UpdatedAt     string `json:"updatedAt"`
}

// FeeService 费率表维护，变更后立即失效对应缓存
type FeeService struct {
	repo  domain.FeeRepository
	cache cache.Cache
}

func NewFeeService(repo domain.FeeRepository, c cache.Cache) *FeeService {
	return &FeeService{repo: repo, cache: c}
}

func (s *FeeService) ListActiveFees(ctx context.Context) ([]FeeDTO, error) {
	fees, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FeeDTO, 0, len(fees))
	for _, f := range fees {
		out = append(out, *toFeeDTO(f))
	}
	return out, nil
}

func toFeeDTO(f *domain.PaymentMethodFee) *FeeDTO {
	return &FeeDTO{
		PaymentMethod: f.PaymentMethod,
		FeePercentage: f.FeePercentage.StringFixed(3),
		IsActive:      f.IsActive,
		UpdatedAt:     f.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SetFee 创建或更新某支付方式的费率，费率先按存储精度取 3 位小数再校验区间
func (s *FeeService) SetFee(ctx context.Context, paymentMethod string, pct decimal.Decimal) (*FeeDTO, error) {
	method, ok := domain.LookupPaymentMethod(paymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPaymentMethod, paymentMethod)
	}
	pct = pct.Round(3)
	if pct.IsNegative() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, ErrInvalidFee
	}
	fee := &domain.PaymentMethodFee{PaymentMethod: method, FeePercentage: pct}
	if err := s.repo.Upsert(ctx, fee); err != nil {
		return nil, err
	}
	s.invalidate(ctx, method)
	logger.Info(ctx, "payment method fee updated", "payment_method", method, "fee_percentage", pct.String())
	return toFeeDTO(fee), nil
}

// DeactivateFee 停用后该方式回落到静态默认费率
func (s *FeeService) DeactivateFee(ctx context.Context, paymentMethod string) error {
	method, ok := domain.LookupPaymentMethod(paymentMethod)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPaymentMethod, paymentMethod)
	}
	if err := s.repo.Deactivate(ctx, method); err != nil {
		return fmt.Errorf("deactivate %s: %w", method, err)
	}
	s.invalidate(ctx, method)
	logger.Info(ctx, "payment method fee deactivated", "payment_method", method)
	return nil
}

func (s *FeeService) invalidate(ctx context.Context, method string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, FeeCacheKeyPrefix+method); err != nil {
		logger.Warn(ctx, "fee cache invalidation failed", "payment_method", method, "error", err)
	}
}
