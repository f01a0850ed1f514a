package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/orderpipeline/internal/order/application"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// Handler 订单与支付只读接口
type Handler struct {
	orders   *application.OrderQueryService
	payments *application.PaymentQueryService
}

// NewHandler 注册路由，mw 作用于整个 /api/v1 分组（如限流）
func NewHandler(r gin.IRouter, orders *application.OrderQueryService, payments *application.PaymentQueryService, mw ...gin.HandlerFunc) *Handler {
	h := &Handler{orders: orders, payments: payments}
	v1 := r.Group("/api/v1", mw...)
	{
		v1.GET("/payments/recent", h.RecentPayments)
		v1.GET("/payments", h.PaymentsByStatus)
		v1.GET("/orders/recent", h.RecentOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.GET("/customers/:id/orders", h.CustomerOrders)
	}
	return h
}

// count 解析 count 参数，缺省返回 0 由服务层使用默认值
func count(c *gin.Context) (int, bool) {
	raw := c.Query("count")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a positive integer"})
		return 0, false
	}
	return n, true
}

func (h *Handler) RecentPayments(c *gin.Context) {
	n, ok := count(c)
	if !ok {
		return
	}
	out, err := h.payments.GetRecentPayments(c.Request.Context(), n)
	if err != nil {
		internalError(c, "list recent payments failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) PaymentsByStatus(c *gin.Context) {
	status := c.Query("status")
	if status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}
	n, ok := count(c)
	if !ok {
		return
	}
	out, err := h.payments.GetPaymentsByStatus(c.Request.Context(), status, n)
	if err != nil {
		internalError(c, "list payments by status failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) RecentOrders(c *gin.Context) {
	n, ok := count(c)
	if !ok {
		return
	}
	out, err := h.orders.RecentOrders(c.Request.Context(), n)
	if err != nil {
		internalError(c, "list recent orders failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetOrder(c *gin.Context) {
	out, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if err != nil {
		internalError(c, "get order failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CustomerOrders(c *gin.Context) {
	n, ok := count(c)
	if !ok {
		return
	}
	out, err := h.orders.CustomerOrders(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		internalError(c, "list customer orders failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func internalError(c *gin.Context, msg string, err error) {
	logger.Error(c.Request.Context(), msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
