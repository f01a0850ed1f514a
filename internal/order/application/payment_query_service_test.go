package application

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/cache"
)

type countingPayments struct {
	domain.PaymentRepository
	calls    int
	lastSize int
	rows     []*domain.Payment
}

func (c *countingPayments) ListRecent(_ context.Context, limit int) ([]*domain.Payment, error) {
	c.calls++
	c.lastSize = limit
	if limit > len(c.rows) {
		limit = len(c.rows)
	}
	return c.rows[:limit], nil
}

func paymentRows(n int) []*domain.Payment {
	rows := make([]*domain.Payment, n)
	for i := range rows {
		rows[i] = &domain.Payment{
			OrderID:       "ORD-" + string(rune('A'+i)),
			PaymentMethod: "Swish",
			TransactionID: "TXN-0000000" + string(rune('A'+i)),
			Status:        domain.PaymentStatusCompleted,
			Amount:        decimal.RequireFromString("100.5"),
			FeePercentage: decimal.RequireFromString("0.7"),
			FeeAmount:     decimal.RequireFromString("0.70"),
		}
	}
	return rows
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *cache.RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.NewWithClient(client, "")
}

func TestRecentPaymentsCacheAside(t *testing.T) {
	mr, c := newRedisCache(t)
	repo := &countingPayments{rows: paymentRows(10)}
	svc := NewPaymentQueryService(repo, c, QueryLimits{})
	ctx := context.Background()

	first, err := svc.GetRecentPayments(ctx, 0)
	if err != nil {
		t.Fatalf("GetRecentPayments: %v", err)
	}
	if len(first) != DefaultRecentPaymentsCount || repo.lastSize != DefaultRecentPaymentsCount {
		t.Fatalf("got %d rows (limit %d), want default count", len(first), repo.lastSize)
	}
	if first[0].Amount != "100.50" || first[0].FeePercentage != "0.700" {
		t.Fatalf("dto amounts = %s / %s", first[0].Amount, first[0].FeePercentage)
	}
	if !mr.Exists(RecentPaymentsCacheKey) {
		t.Fatalf("key %s not cached", RecentPaymentsCacheKey)
	}
	if ttl := mr.TTL(RecentPaymentsCacheKey); ttl != DefaultRecentPaymentsTTL {
		t.Fatalf("ttl = %v", ttl)
	}

	second, err := svc.GetRecentPayments(ctx, DefaultRecentPaymentsCount)
	if err != nil {
		t.Fatalf("GetRecentPayments: %v", err)
	}
	if repo.calls != 1 || len(second) != len(first) {
		t.Fatalf("repo calls = %d, second read should hit cache", repo.calls)
	}

	mr.FastForward(DefaultRecentPaymentsTTL + time.Second)
	if _, err := svc.GetRecentPayments(ctx, 0); err != nil {
		t.Fatalf("GetRecentPayments: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("repo calls = %d, expired entry must reload", repo.calls)
	}
}

func TestRecentPaymentsKeyPerCount(t *testing.T) {
	mr, c := newRedisCache(t)
	repo := &countingPayments{rows: paymentRows(5)}
	svc := NewPaymentQueryService(repo, c, QueryLimits{MaxCount: 4})

	out, err := svc.GetRecentPayments(context.Background(), 50)
	if err != nil {
		t.Fatalf("GetRecentPayments: %v", err)
	}
	if len(out) != 4 || repo.lastSize != 4 {
		t.Fatalf("count not clamped: %d rows, limit %d", len(out), repo.lastSize)
	}
	if !mr.Exists("recent_payments:4") || mr.Exists(RecentPaymentsCacheKey) {
		t.Fatalf("keys = %v", mr.Keys())
	}
}

func TestRecentPaymentsFallsBackWhenCacheDown(t *testing.T) {
	mr, c := newRedisCache(t)
	repo := &countingPayments{rows: paymentRows(3)}
	svc := NewPaymentQueryService(repo, c, QueryLimits{})
	mr.Close()

	out, err := svc.GetRecentPayments(context.Background(), 2)
	if err != nil {
		t.Fatalf("cache outage must not fail the query: %v", err)
	}
	if len(out) != 2 || repo.calls != 1 {
		t.Fatalf("rows = %d, repo calls = %d", len(out), repo.calls)
	}
}
