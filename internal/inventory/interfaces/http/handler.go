package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderpipeline/internal/inventory/domain"
)

type Handler struct {
	repo domain.ProductRepository
}

func NewHandler(r gin.IRouter, repo domain.ProductRepository) *Handler {
	h := &Handler{repo: repo}
	v1 := r.Group("/api/v1")
	{
		v1.GET("/products", h.ListProducts)
		v1.GET("/products/:id", h.GetProduct)
		v1.GET("/inventory/stock", h.TotalStock)
	}
	return h
}

type productResponse struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	SKU            string `json:"sku"`
	UnitPrice      string `json:"unitPrice"`
	AvailableStock int    `json:"availableStock"`
}

func toResponse(p domain.Product) productResponse {
	return productResponse{
		ProductID:      p.ProductID,
		Name:           p.Name,
		Category:       p.Category,
		SKU:            p.SKU(),
		UnitPrice:      p.UnitPrice.StringFixed(2),
		AvailableStock: p.AvailableStock,
	}
}

func (h *Handler) ListProducts(c *gin.Context) {
	filter := domain.ListFilter{Category: c.Query("category")}
	if raw := c.Query("stock_limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stock_limit must be a non-negative integer"})
			return
		}
		filter.StockLimit = &limit
	}

	products := h.repo.List(c.Request.Context(), filter)
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toResponse(p))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetProduct(c *gin.Context) {
	p, ok := h.repo.Get(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, toResponse(p))
}

func (h *Handler) TotalStock(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"totalAvailableStock": h.repo.TotalAvailableStock(c.Request.Context())})
}
