package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T) *RedisRateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client)
}

func TestAllowDeniesAfterBurst(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 1, Period: time.Minute, Burst: 3}
	key := Key("/api/v1/payments/recent", "10.0.0.1")

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, key, limit)
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	res, err := l.Allow(ctx, key, limit)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed || res.RetryAfter <= 0 {
		t.Fatalf("result = %+v, want denied with retry-after", res)
	}
}

func TestRoutesCountSeparately(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()
	limit := Limit{Rate: 1, Period: time.Minute, Burst: 1}

	if res, _ := l.Allow(ctx, Key("/api/v1/orders/recent", "10.0.0.1"), limit); !res.Allowed {
		t.Fatal("first orders request denied")
	}
	if res, _ := l.Allow(ctx, Key("/api/v1/orders/recent", "10.0.0.1"), limit); res.Allowed {
		t.Fatal("second orders request allowed")
	}
	if res, _ := l.Allow(ctx, Key("/api/v1/payments/recent", "10.0.0.1"), limit); !res.Allowed {
		t.Fatal("payments request should not share the orders budget")
	}
	if res, _ := l.Allow(ctx, Key("/api/v1/orders/recent", "10.0.0.2"), limit); !res.Allowed {
		t.Fatal("other client should not share the budget")
	}
}

func TestAllowRejectsInvalidLimit(t *testing.T) {
	l := newLimiter(t)
	for _, limit := range []Limit{{}, {Rate: 5}, {Period: time.Second}} {
		if _, err := l.Allow(context.Background(), "k", limit); !errors.Is(err, ErrInvalidLimit) {
			t.Fatalf("limit %+v: err = %v", limit, err)
		}
	}
}

func TestPolicyRouteOverride(t *testing.T) {
	p := NewPolicy(PerSecond(50, 100), map[string]Limit{
		"/api/v1/Customers/:id/orders": PerSecond(5, 0),
	})
	if got := p.For("/api/v1/customers/:id/orders"); got.Rate != 5 || got.EffectiveBurst() != 5 {
		t.Fatalf("override = %+v", got)
	}
	if got := p.For("/api/v1/orders/:id"); got.Rate != 50 || got.EffectiveBurst() != 100 {
		t.Fatalf("default = %+v", got)
	}
}
