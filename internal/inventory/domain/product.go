// Package domain 包含库存上下文的领域模型
package domain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Product 商品及其可用库存
type Product struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	AvailableStock int             `json:"availableStock"`
}

// SKU 由名称与商品编号数字部分组成，例如 SKU-WIRELESSHEADPHONES-1001
func (p Product) SKU() string {
	number := p.ProductID
	if i := strings.IndexByte(number, '-'); i >= 0 {
		number = number[i+1:]
	}
	return "SKU-" + strings.ToUpper(strings.ReplaceAll(p.Name, " ", "")) + "-" + number
}

// ReservationItem 一次预留中的单个商品
type ReservationItem struct {
	ProductID string
	Quantity  int
}

// ListFilter 商品查询条件，零值表示不过滤
type ListFilter struct {
	// 仅返回 AvailableStock <= StockLimit 的商品
	StockLimit *int
	// 大小写不敏感
	Category string
}

// Matches 判断商品是否满足过滤条件
func (f ListFilter) Matches(p Product) bool {
	if f.StockLimit != nil && p.AvailableStock > *f.StockLimit {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	return true
}

// ProductRepository 库存存储。
// 所有扣减在同一临界区内完成，读操作返回副本
type ProductRepository interface {
	// TryReserve 全部满足才整体扣减，任一不足则不做任何修改并返回 false
	TryReserve(ctx context.Context, items []ReservationItem) bool
	// GetRandomAvailable 在有库存的商品中均匀随机选取一个
	GetRandomAvailable(ctx context.Context) (Product, bool)
	TotalAvailableStock(ctx context.Context) int
	List(ctx context.Context, filter ListFilter) []Product
	Get(ctx context.Context, productID string) (Product, bool)
}
