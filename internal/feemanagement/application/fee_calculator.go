package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/feemanagement/domain"
	"github.com/wyfcoding/orderpipeline/pkg/cache"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
)

// FeeCacheKeyPrefix 费率缓存键前缀，值为十进制字符串
const FeeCacheKeyPrefix = "payment_method_fee:"

// DefaultFeeCacheTTL 费率缓存有效期
const DefaultFeeCacheTTL = 10 * time.Minute

// FeeCalculator 计算支付手续费，任何依赖故障都不会返回错误
type FeeCalculator interface {
	CalculateFee(ctx context.Context, paymentMethod string, amount decimal.Decimal) (feePercentage, feeAmount decimal.Decimal)
}

// FeeCacheKey 返回某支付方式的缓存键
func FeeCacheKey(paymentMethod string) string {
	return FeeCacheKeyPrefix + domain.NormalizePaymentMethod(paymentMethod)
}

// CachedFeeCalculator 三级解析：缓存 -> 费率表（每次都刷新缓存）-> 静态默认值。
// 每一级的失败单独记录，不影响后续级别
type CachedFeeCalculator struct {
	repo    domain.FeeRepository
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCachedFeeCalculator 创建带缓存的计算器，m 可为 nil
func NewCachedFeeCalculator(repo domain.FeeRepository, c cache.Cache, ttl time.Duration, m *metrics.Metrics) *CachedFeeCalculator {
	if ttl <= 0 {
		ttl = DefaultFeeCacheTTL
	}
	return &CachedFeeCalculator{
		repo:    repo,
		cache:   c,
		ttl:     ttl,
		metrics: m,
		logger:  logger.With("component", "fee_calculator"),
	}
}

func (c *CachedFeeCalculator) CalculateFee(ctx context.Context, paymentMethod string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pct := c.ResolveFeePercentage(ctx, paymentMethod)
	return pct, domain.CalculateFeeAmount(amount, pct)
}

// ResolveFeePercentage 按三级顺序解析费率
func (c *CachedFeeCalculator) ResolveFeePercentage(ctx context.Context, paymentMethod string) decimal.Decimal {
	method := domain.NormalizePaymentMethod(paymentMethod)
	key := FeeCacheKeyPrefix + method

	cached, hit := c.fromCache(ctx, key)

	// 命中与否都向费率表确认，刷新后的值供下一次调用使用
	stored, found := c.fromStore(ctx, method)
	if found {
		c.writeCache(ctx, key, stored)
	}

	switch {
	case hit:
		c.observe(metrics.FeeSourceCache)
		return cached
	case found:
		c.observe(metrics.FeeSourceStore)
		return stored
	default:
		c.observe(metrics.FeeSourceDefault)
		pct := domain.DefaultFeePercentage(method)
		c.logger.WarnContext(ctx, "using static default fee", "payment_method", method, "fee_percentage", pct.String())
		return pct
	}
}

func (c *CachedFeeCalculator) fromCache(ctx context.Context, key string) (decimal.Decimal, bool) {
	if c.cache == nil {
		return decimal.Zero, false
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.ErrorContext(ctx, "fee cache read failed", "key", key, "error", err)
		return decimal.Zero, false
	}
	if !ok {
		return decimal.Zero, false
	}
	pct, err := decimal.NewFromString(string(raw))
	if err != nil {
		c.logger.ErrorContext(ctx, "fee cache holds invalid value", "key", key, "value", string(raw), "error", err)
		return decimal.Zero, false
	}
	return pct, true
}

func (c *CachedFeeCalculator) fromStore(ctx context.Context, method string) (decimal.Decimal, bool) {
	fee, err := c.repo.GetActiveFee(ctx, method)
	if errors.Is(err, domain.ErrFeeNotFound) {
		c.logger.DebugContext(ctx, "no active fee configured", "payment_method", method)
		return decimal.Zero, false
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "fee store lookup failed", "payment_method", method, "error", err)
		return decimal.Zero, false
	}
	return fee.FeePercentage, true
}

func (c *CachedFeeCalculator) writeCache(ctx context.Context, key string, pct decimal.Decimal) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, []byte(pct.String()), c.ttl); err != nil {
		c.logger.ErrorContext(ctx, "fee cache write failed", "key", key, "error", err)
	}
}

func (c *CachedFeeCalculator) observe(source string) {
	if c.metrics != nil {
		c.metrics.FeeResolutions.WithLabelValues(source).Inc()
	}
}

// StaticFeeCalculator 仅使用静态默认费率，不依赖缓存与数据库
type StaticFeeCalculator struct{}

func (StaticFeeCalculator) CalculateFee(_ context.Context, paymentMethod string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pct := domain.DefaultFeePercentage(paymentMethod)
	return pct, domain.CalculateFeeAmount(amount, pct)
}
