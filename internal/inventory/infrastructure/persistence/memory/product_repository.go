// Package memory 提供进程内的库存存储，所有读写经同一把锁串行化
package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/wyfcoding/orderpipeline/internal/inventory/domain"
)

type productRepository struct {
	mu       sync.Mutex
	products []domain.Product
	index    map[string]int
	rng      *rand.Rand
}

// NewProductRepository 以给定目录初始化库存，目录内容被复制
func NewProductRepository(catalog []domain.Product) domain.ProductRepository {
	seed := uint64(time.Now().UnixNano())
	return newProductRepository(catalog, rand.New(rand.NewPCG(seed, seed>>1|1)))
}

func newProductRepository(catalog []domain.Product, rng *rand.Rand) *productRepository {
	r := &productRepository{
		products: make([]domain.Product, len(catalog)),
		index:    make(map[string]int, len(catalog)),
		rng:      rng,
	}
	copy(r.products, catalog)
	for i, p := range r.products {
		if p.AvailableStock < 0 {
			r.products[i].AvailableStock = 0
		}
		r.index[p.ProductID] = i
	}
	return r
}

func (r *productRepository) TryReserve(_ context.Context, items []domain.ReservationItem) bool {
	if len(items) == 0 {
		return false
	}

	// 同一商品多次出现时合并后再校验
	wanted := make(map[int]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return false
		}
		i, ok := r.index[it.ProductID]
		if !ok {
			return false
		}
		wanted[i] += it.Quantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, qty := range wanted {
		if r.products[i].AvailableStock < qty {
			return false
		}
	}
	for i, qty := range wanted {
		r.products[i].AvailableStock -= qty
	}
	return true
}

func (r *productRepository) GetRandomAvailable(_ context.Context) (domain.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]int, 0, len(r.products))
	for i, p := range r.products {
		if p.AvailableStock > 0 {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return domain.Product{}, false
	}
	return r.products[candidates[r.rng.IntN(len(candidates))]], true
}

func (r *productRepository) TotalAvailableStock(_ context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, p := range r.products {
		total += p.AvailableStock
	}
	return total
}

func (r *productRepository) List(_ context.Context, filter domain.ListFilter) []domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *productRepository) Get(_ context.Context, productID string) (domain.Product, bool) {
	i, ok := r.index[productID]
	if !ok {
		return domain.Product{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[i], true
}
