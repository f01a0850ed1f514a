package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/feemanagement/domain"
	"github.com/wyfcoding/orderpipeline/pkg/metrics"
)

type fakeFeeRepo struct {
	mu    sync.Mutex
	fees  map[string]decimal.Decimal
	err   error
	calls int
}

func newFakeFeeRepo() *fakeFeeRepo {
	r := &fakeFeeRepo{fees: make(map[string]decimal.Decimal)}
	for _, f := range domain.DefaultFees() {
		r.fees[f.PaymentMethod] = f.FeePercentage
	}
	return r
}

func (r *fakeFeeRepo) GetActiveFee(_ context.Context, method string) (*domain.PaymentMethodFee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	pct, ok := r.fees[method]
	if !ok {
		return nil, domain.ErrFeeNotFound
	}
	return &domain.PaymentMethodFee{PaymentMethod: method, FeePercentage: pct, IsActive: true}, nil
}

func (r *fakeFeeRepo) ListActive(context.Context) ([]*domain.PaymentMethodFee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PaymentMethodFee, 0, len(r.fees))
	for m, pct := range r.fees {
		out = append(out, &domain.PaymentMethodFee{PaymentMethod: m, FeePercentage: pct, IsActive: true})
	}
	return out, r.err
}

func (r *fakeFeeRepo) Upsert(_ context.Context, fee *domain.PaymentMethodFee) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fees[fee.PaymentMethod] = fee.FeePercentage
	return r.err
}

func (r *fakeFeeRepo) Deactivate(_ context.Context, method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fees[method]; !ok {
		return domain.ErrFeeNotFound
	}
	delete(r.fees, method)
	return nil
}

func (r *fakeFeeRepo) SeedDefaults(context.Context) error { return nil }

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return c.err
}

func (c *fakeCache) value(key string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.data[key])
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateFeeFromSeededStore(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	calc := NewCachedFeeCalculator(repo, c, 0, metrics.New("test"))

	pct, amount := calc.CalculateFee(context.Background(), "CreditCard", dec("100.00"))
	if !pct.Equal(dec("2.0")) || !amount.Equal(dec("2.00")) {
		t.Fatalf("got (%s, %s), want (2.0, 2.00)", pct, amount)
	}
	if got := c.value("payment_method_fee:CreditCard"); got != "2" {
		t.Fatalf("cache value = %q, want 2", got)
	}
	if c.ttls["payment_method_fee:CreditCard"] != DefaultFeeCacheTTL {
		t.Fatalf("ttl = %s", c.ttls["payment_method_fee:CreditCard"])
	}
}

func TestCalculateFeeUnknownMethod(t *testing.T) {
	calc := NewCachedFeeCalculator(newFakeFeeRepo(), newFakeCache(), time.Minute, nil)

	pct, amount := calc.CalculateFee(context.Background(), "Unknown", dec("33.335"))
	if !pct.Equal(dec("1.5")) || !amount.Equal(dec("0.50")) {
		t.Fatalf("got (%s, %s), want (1.5, 0.50)", pct, amount)
	}

	// 无法识别的方式按 Unknown 计费
	pct, _ = calc.CalculateFee(context.Background(), "Klarna", dec("10"))
	if !pct.Equal(dec("1.5")) {
		t.Fatalf("unrecognized method pct = %s", pct)
	}
}

func TestStaleCacheUsedOnceThenRefreshed(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	c.data["payment_method_fee:PayPal"] = []byte("3.0")
	calc := NewCachedFeeCalculator(repo, c, time.Minute, nil)

	pct, _ := calc.CalculateFee(context.Background(), "paypal", dec("100"))
	if !pct.Equal(dec("3.0")) {
		t.Fatalf("first call should use cached 3.0, got %s", pct)
	}
	if repo.calls != 1 {
		t.Fatalf("store should be consulted even on a hit, calls=%d", repo.calls)
	}
	pct, _ = calc.CalculateFee(context.Background(), "PayPal", dec("100"))
	if !pct.Equal(dec("1.5")) {
		t.Fatalf("second call should see refreshed 1.5, got %s", pct)
	}
}

func TestStoreFailureFallsBackToCacheThenDefault(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	repo.err = errors.New("connection refused")
	c.data["payment_method_fee:ApplePay"] = []byte("1.25")
	calc := NewCachedFeeCalculator(repo, c, time.Minute, nil)

	pct, _ := calc.CalculateFee(context.Background(), "ApplePay", dec("100"))
	if !pct.Equal(dec("1.25")) {
		t.Fatalf("store down with cache hit: pct = %s, want 1.25", pct)
	}

	pct, amount := calc.CalculateFee(context.Background(), "Swish", dec("1049.97"))
	if !pct.Equal(dec("0.7")) || !amount.Equal(dec("7.35")) {
		t.Fatalf("store down with cache miss: got (%s, %s), want static (0.7, 7.35)", pct, amount)
	}
}

func TestCacheFailureDoesNotBlockStore(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	c.err = errors.New("redis timeout")
	repo.fees[domain.MethodGooglePay] = dec("1.4")
	calc := NewCachedFeeCalculator(repo, c, time.Minute, nil)

	pct, _ := calc.CalculateFee(context.Background(), "GooglePay", dec("100"))
	if !pct.Equal(dec("1.4")) {
		t.Fatalf("pct = %s, want store value 1.4", pct)
	}
}

func TestInvalidCachedValueIgnored(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	c.data["payment_method_fee:DebitCard"] = []byte("not-a-number")
	calc := NewCachedFeeCalculator(repo, c, time.Minute, nil)

	pct, _ := calc.CalculateFee(context.Background(), "DebitCard", dec("100"))
	if !pct.Equal(dec("0.9")) {
		t.Fatalf("pct = %s, want 0.9", pct)
	}
}

func TestFeeServiceInvalidatesCache(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	calc := NewCachedFeeCalculator(repo, c, time.Minute, nil)
	svc := NewFeeService(repo, c)
	ctx := context.Background()

	calc.CalculateFee(ctx, "BankTransfer", dec("100"))
	dto, err := svc.SetFee(ctx, "banktransfer", dec("0.95"))
	if err != nil {
		t.Fatalf("SetFee: %v", err)
	}
	if dto.PaymentMethod != domain.MethodBankTransfer || dto.FeePercentage != "0.950" {
		t.Fatalf("dto = %+v", dto)
	}
	if c.value("payment_method_fee:BankTransfer") != "" {
		t.Fatal("cache entry should be invalidated after update")
	}
	pct, _ := calc.CalculateFee(ctx, "BankTransfer", dec("100"))
	if !pct.Equal(dec("0.95")) {
		t.Fatalf("pct = %s, want 0.95", pct)
	}

	if _, err := svc.SetFee(ctx, "Swish", dec("-1")); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("negative fee err = %v", err)
	}

	if err := svc.DeactivateFee(ctx, "BankTransfer"); err != nil {
		t.Fatalf("DeactivateFee: %v", err)
	}
	pct, _ = calc.CalculateFee(ctx, "BankTransfer", dec("100"))
	if !pct.Equal(dec("0.8")) {
		t.Fatalf("deactivated fee should fall back to static 0.8, got %s", pct)
	}
}

func TestFeeServiceRejectsUnknownMethod(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	svc := NewFeeService(repo, c)
	ctx := context.Background()

	if _, err := svc.SetFee(ctx, "Klarna", dec("9.5")); !errors.Is(err, domain.ErrUnknownPaymentMethod) {
		t.Fatalf("SetFee err = %v", err)
	}
	if err := svc.DeactivateFee(ctx, "Bogus"); !errors.Is(err, domain.ErrUnknownPaymentMethod) {
		t.Fatalf("DeactivateFee err = %v", err)
	}
	if !repo.fees[domain.MethodUnknown].Equal(dec("1.5")) {
		t.Fatalf("Unknown fee changed to %s", repo.fees[domain.MethodUnknown])
	}
}

func TestFeeServiceRoundsBeforeRangeCheck(t *testing.T) {
	repo, c := newFakeFeeRepo(), newFakeCache()
	svc := NewFeeService(repo, c)
	ctx := context.Background()

	if _, err := svc.SetFee(ctx, "PayPal", dec("99.9996")); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("99.9996 err = %v, want ErrInvalidFee", err)
	}
	dto, err := svc.SetFee(ctx, "PayPal", dec("99.9994"))
	if err != nil {
		t.Fatalf("SetFee: %v", err)
	}
	if dto.FeePercentage != "99.999" || !repo.fees[domain.MethodPayPal].Equal(dec("99.999")) {
		t.Fatalf("dto = %+v, stored = %s", dto, repo.fees[domain.MethodPayPal])
	}
}

func TestStaticFeeCalculator(t *testing.T) {
	pct, amount := StaticFeeCalculator{}.CalculateFee(context.Background(), "CreditCard", dec("899.99"))
	if !pct.Equal(dec("2.0")) || !amount.Equal(dec("18.00")) {
		t.Fatalf("got (%s, %s)", pct, amount)
	}
}
