package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/feemanagement/application"
	"github.com/wyfcoding/orderpipeline/internal/feemanagement/domain"
)

// Handler 手续费率管理接口，修改后失效对应缓存
type Handler struct {
	svc *application.FeeService
}

func NewHandler(r gin.IRouter, svc *application.FeeService) *Handler {
	h := &Handler{svc: svc}
	v1 := r.Group("/api/v1/fees")
	{
		v1.GET("", h.List)
		v1.PUT("/:method", h.Set)
		v1.DELETE("/:method", h.Deactivate)
	}
	return h
}

type setFeeRequest struct {
	FeePercentage *decimal.Decimal `json:"feePercentage"`
}

func (h *Handler) List(c *gin.Context) {
	fees, err := h.svc.ListActiveFees(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, fees)
}

func (h *Handler) Set(c *gin.Context) {
	var req setFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.FeePercentage == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feePercentage is required"})
		return
	}
	fee, err := h.svc.SetFee(c.Request.Context(), c.Param("method"), *req.FeePercentage)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paymentMethod": fee.PaymentMethod, "feePercentage": fee.FeePercentage})
}

func (h *Handler) Deactivate(c *gin.Context) {
	if err := h.svc.DeactivateFee(c.Request.Context(), c.Param("method")); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownPaymentMethod), errors.Is(err, application.ErrInvalidFee):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFeeNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
