package domain

import "github.com/shopspring/decimal"

// DefaultInitialStock 每个商品的初始库存
const DefaultInitialStock = 6

// DefaultCatalog 返回启动时装载的固定商品目录
func DefaultCatalog(initialStock int) []Product {
	if initialStock < 0 {
		initialStock = 0
	}
	seed := []struct {
		id, name, category, price string
	}{
		{"PROD-1001", "Wireless Headphones", "Audio", "899.99"},
		{"PROD-1002", "Gaming Keyboard", "Gaming", "1299.99"},
		{"PROD-1003", "USB-C Cable", "Accessories", "149.99"},
		{"PROD-1004", "Smartphone Stand", "Accessories", "199.99"},
		{"PROD-1005", "Bluetooth Speaker", "Audio", "699.99"},
		{"PROD-1006", "Laptop Charger", "Computing", "499.99"},
		{"PROD-1007", "Wireless Mouse", "Computing", "349.99"},
		{"PROD-1008", "Phone Case", "Mobile", "249.99"},
		{"PROD-1009", "Power Bank", "Mobile", "399.99"},
		{"PROD-1010", "Screen Protector", "Mobile", "99.99"},
		{"PROD-1011", "Memory Card", "Electronics", "299.99"},
		{"PROD-1012", "Gaming Controller", "Gaming", "549.99"},
	}

	products := make([]Product, 0, len(seed))
	for _, s := range seed {
		products = append(products, Product{
			ProductID:      s.id,
			Name:           s.name,
			Category:       s.category,
			UnitPrice:      decimal.RequireFromString(s.price),
			AvailableStock: initialStock,
		})
	}
	return products
}
