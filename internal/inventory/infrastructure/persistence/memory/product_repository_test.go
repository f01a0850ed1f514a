package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/wyfcoding/orderpipeline/internal/inventory/domain"
)

func newTestRepo(stock int) *productRepository {
	return newProductRepository(domain.DefaultCatalog(stock), rand.New(rand.NewPCG(1, 2)))
}

func TestTryReserveAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(2)

	ok := repo.TryReserve(ctx, []domain.ReservationItem{
		{ProductID: "PROD-1001", Quantity: 1},
		{ProductID: "PROD-1002", Quantity: 3},
	})
	if ok {
		t.Fatal("reservation exceeding stock should fail")
	}
	if p, _ := repo.Get(ctx, "PROD-1001"); p.AvailableStock != 2 {
		t.Fatalf("failed reservation decremented PROD-1001 to %d", p.AvailableStock)
	}

	if !repo.TryReserve(ctx, []domain.ReservationItem{
		{ProductID: "PROD-1001", Quantity: 1},
		{ProductID: "PROD-1002", Quantity: 2},
	}) {
		t.Fatal("reservation within stock should succeed")
	}
	if p, _ := repo.Get(ctx, "PROD-1002"); p.AvailableStock != 0 {
		t.Fatalf("PROD-1002 stock = %d, want 0", p.AvailableStock)
	}
}

func TestTryReserveCoalescesDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(3)

	// 合计 4 件，超过库存 3
	if repo.TryReserve(ctx, []domain.ReservationItem{
		{ProductID: "PROD-1003", Quantity: 2},
		{ProductID: "PROD-1003", Quantity: 2},
	}) {
		t.Fatal("duplicate lines must be checked against their sum")
	}
	if !repo.TryReserve(ctx, []domain.ReservationItem{
		{ProductID: "PROD-1003", Quantity: 1},
		{ProductID: "PROD-1003", Quantity: 2},
	}) {
		t.Fatal("summed quantity equal to stock should succeed")
	}
}

func TestTryReserveRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(5)
	cases := [][]domain.ReservationItem{
		nil,
		{{ProductID: "PROD-9999", Quantity: 1}},
		{{ProductID: "PROD-1001", Quantity: 0}},
		{{ProductID: "PROD-1001", Quantity: -1}},
	}
	for _, items := range cases {
		if repo.TryReserve(ctx, items) {
			t.Errorf("TryReserve(%v) should fail", items)
		}
	}
	if total := repo.TotalAvailableStock(ctx); total != 5*12 {
		t.Fatalf("total stock changed to %d", total)
	}
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	const initial = 6
	repo := newTestRepo(initial)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved = make(map[string]int)
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed+7))
			for i := 0; i < 200; i++ {
				items := []domain.ReservationItem{
					{ProductID: "PROD-1001", Quantity: 1 + rng.IntN(2)},
					{ProductID: "PROD-1002", Quantity: 1 + rng.IntN(2)},
				}
				if repo.TryReserve(ctx, items) {
					mu.Lock()
					for _, it := range items {
						reserved[it.ProductID] += it.Quantity
					}
					mu.Unlock()
				}
			}
		}(uint64(w))
	}
	wg.Wait()

	for _, id := range []string{"PROD-1001", "PROD-1002"} {
		p, _ := repo.Get(ctx, id)
		if reserved[id] > initial {
			t.Fatalf("%s oversold: reserved %d of %d", id, reserved[id], initial)
		}
		if p.AvailableStock != initial-reserved[id] {
			t.Fatalf("%s stock %d does not match reserved %d", id, p.AvailableStock, reserved[id])
		}
		if p.AvailableStock < 0 {
			t.Fatalf("%s stock negative", id)
		}
	}
}

func TestGetRandomAvailableSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	repo := newProductRepository([]domain.Product{
		{ProductID: "PROD-1", Name: "A", AvailableStock: 0},
		{ProductID: "PROD-2", Name: "B", AvailableStock: 1},
	}, rand.New(rand.NewPCG(3, 4)))

	for i := 0; i < 20; i++ {
		p, ok := repo.GetRandomAvailable(ctx)
		if !ok || p.ProductID != "PROD-2" {
			t.Fatalf("got %v %v, want PROD-2", p.ProductID, ok)
		}
	}

	repo.TryReserve(ctx, []domain.ReservationItem{{ProductID: "PROD-2", Quantity: 1}})
	if _, ok := repo.GetRandomAvailable(ctx); ok {
		t.Fatal("exhausted catalog should return none")
	}
}

func TestListReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(4)

	list := repo.List(ctx, domain.ListFilter{Category: "mobile"})
	if len(list) != 3 {
		t.Fatalf("mobile products = %d, want 3", len(list))
	}
	list[0].AvailableStock = 100
	if p, _ := repo.Get(ctx, list[0].ProductID); p.AvailableStock != 4 {
		t.Fatal("List must not alias internal state")
	}

	limit := 3
	repo.TryReserve(ctx, []domain.ReservationItem{{ProductID: "PROD-1010", Quantity: 2}})
	low := repo.List(ctx, domain.ListFilter{StockLimit: &limit})
	if len(low) != 1 || low[0].ProductID != "PROD-1010" {
		t.Fatalf("low stock = %+v", low)
	}
}

func TestSKU(t *testing.T) {
	p := domain.Product{ProductID: "PROD-1001", Name: "Wireless Headphones"}
	if got := p.SKU(); got != "SKU-WIRELESSHEADPHONES-1001" {
		t.Fatalf("SKU = %s", got)
	}
}
