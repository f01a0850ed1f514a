package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/cache"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// RecentPaymentsCacheKey 默认条数的最近支付缓存键
const RecentPaymentsCacheKey = "recent_payments"

const (
	DefaultRecentPaymentsCount = 7
	DefaultRecentPaymentsTTL   = 2 * time.Minute
	DefaultMaxQueryCount       = 100
)

// PaymentDTO 支付查询结果，金额以字符串输出
type PaymentDTO struct {
	OrderID         string    `json:"orderId"`
	PaymentMethod   string    `json:"paymentMethod"`
	PaymentProvider string    `json:"paymentProvider"`
	TransactionID   string    `json:"transactionId"`
	Status          string    `json:"status"`
	Amount          string    `json:"amount"`
	FeePercentage   string    `json:"feePercentage"`
	FeeAmount       string    `json:"feeAmount"`
	ProcessedAt     time.Time `json:"processedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// QueryLimits 查询条数与缓存参数
type QueryLimits struct {
	DefaultCount int
	MaxCount     int
	CacheTTL     time.Duration
}

func (l QueryLimits) normalize(count int) int {
	if count <= 0 {
		count = l.DefaultCount
	}
	if l.MaxCount > 0 && count > l.MaxCount {
		count = l.MaxCount
	}
	return count
}

// PaymentQueryService 最近支付查询，缓存旁路读取，缓存故障时直接查库
type PaymentQueryService struct {
	payments domain.PaymentRepository
	cache    cache.Cache
	limits   QueryLimits
}

func NewPaymentQueryService(payments domain.PaymentRepository, c cache.Cache, limits QueryLimits) *PaymentQueryService {
	if limits.DefaultCount <= 0 {
		limits.DefaultCount = DefaultRecentPaymentsCount
	}
	if limits.MaxCount <= 0 {
		limits.MaxCount = DefaultMaxQueryCount
	}
	if limits.CacheTTL <= 0 {
		limits.CacheTTL = DefaultRecentPaymentsTTL
	}
	return &PaymentQueryService{payments: payments, cache: c, limits: limits}
}

// RecentPaymentsKey 默认条数使用 recent_payments，其余为 recent_payments:<count>
func (s *PaymentQueryService) RecentPaymentsKey(count int) string {
	if count == s.limits.DefaultCount {
		return RecentPaymentsCacheKey
	}
	return fmt.Sprintf("%s:%d", RecentPaymentsCacheKey, count)
}

// GetRecentPayments 返回最近 count 条支付记录，count<=0 时使用默认值
func (s *PaymentQueryService) GetRecentPayments(ctx context.Context, count int) ([]PaymentDTO, error) {
	count = s.limits.normalize(count)
	key := s.RecentPaymentsKey(count)

	if s.cache != nil {
		var cached []PaymentDTO
		ok, err := cache.GetJSON(ctx, s.cache, key, &cached)
		if err != nil {
			logger.Warn(ctx, "recent payments cache read failed", "key", key, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	payments, err := s.payments.ListRecent(ctx, count)
	if err != nil {
		return nil, err
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, out, s.limits.CacheTTL); err != nil {
			logger.Warn(ctx, "recent payments cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

// GetPaymentsByStatus 不走缓存
func (s *PaymentQueryService) GetPaymentsByStatus(ctx context.Context, status string, count int) ([]PaymentDTO, error) {
	payments, err := s.payments.ListByStatus(ctx, status, s.limits.normalize(count))
	if err != nil {
		return nil, err
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	return out, nil
}

func toPaymentDTO(p *domain.Payment) PaymentDTO {
	return PaymentDTO{
		OrderID:         p.OrderID,
		PaymentMethod:   p.PaymentMethod,
		PaymentProvider: p.PaymentProvider,
		TransactionID:   p.TransactionID,
		Status:          p.Status,
		Amount:          p.Amount.StringFixed(2),
		FeePercentage:   p.FeePercentage.StringFixed(3),
		FeeAmount:       p.FeeAmount.StringFixed(2),
		ProcessedAt:     p.ProcessedAt,
		CreatedAt:       p.CreatedAt,
	}
}
