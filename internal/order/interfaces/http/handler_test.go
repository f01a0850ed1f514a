package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/orderpipeline/internal/order/application"
	"github.com/wyfcoding/orderpipeline/internal/order/domain"
)

type stubOrders struct {
	domain.OrderRepository
	orders []*domain.Order
	err    error
	limit  int
}

func (s *stubOrders) FindByOrderID(_ context.Context, id string) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.OrderID == id {
			return o, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *stubOrders) ListRecent(_ context.Context, limit int) ([]*domain.Order, error) {
	s.limit = limit
	return s.orders, s.err
}

func (s *stubOrders) ListByCustomer(_ context.Context, customerID string, limit int) ([]*domain.Order, error) {
	s.limit = limit
	var out []*domain.Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

type stubPayments struct {
	domain.PaymentRepository
	payments []*domain.Payment
	status   string
}

func (s *stubPayments) ListRecent(_ context.Context, limit int) ([]*domain.Payment, error) {
	return s.payments[:min(limit, len(s.payments))], nil
}

func (s *stubPayments) ListByStatus(_ context.Context, status string, _ int) ([]*domain.Payment, error) {
	s.status = status
	return s.payments, nil
}

func fixtures() (*stubOrders, *stubPayments) {
	p := &domain.Payment{
		OrderID: "ORD-1", PaymentMethod: "Swish", TransactionID: "TXN-ABCDEF12",
		Status: domain.PaymentStatusCompleted, Amount: decimal.RequireFromString("99.99"),
		FeePercentage: decimal.RequireFromString("0.7"), FeeAmount: decimal.RequireFromString("0.70"),
	}
	o := &domain.Order{OrderID: "ORD-1", CustomerID: "CUST-101", TotalAmount: decimal.RequireFromString("99.99"), Currency: "SEK", Payment: p}
	return &stubOrders{orders: []*domain.Order{o}}, &stubPayments{payments: []*domain.Payment{p}}
}

func setup(orders *stubOrders, payments *stubPayments) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(r,
		application.NewOrderQueryService(orders, application.QueryLimits{}),
		application.NewPaymentQueryService(payments, nil, application.QueryLimits{}),
	)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRecentPayments(t *testing.T) {
	rec := get(setup(fixtures()), "/api/v1/payments/recent?count=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []application.PaymentDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].FeeAmount != "0.70" || out[0].TransactionID != "TXN-ABCDEF12" {
		t.Fatalf("payments = %+v", out)
	}
}

func TestCountValidation(t *testing.T) {
	r := setup(fixtures())
	for _, path := range []string{
		"/api/v1/payments/recent?count=0",
		"/api/v1/orders/recent?count=abc",
		"/api/v1/payments",
	} {
		if rec := get(r, path); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestPaymentsByStatus(t *testing.T) {
	orders, payments := fixtures()
	rec := get(setup(orders, payments), "/api/v1/payments?status=Pending")
	if rec.Code != http.StatusOK || payments.status != "Pending" {
		t.Fatalf("status = %d, filter = %q", rec.Code, payments.status)
	}
}

func TestGetOrder(t *testing.T) {
	r := setup(fixtures())

	rec := get(r, "/api/v1/orders/ORD-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out application.OrderDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.TotalAmount != "99.99" || out.Payment == nil || out.Payment.PaymentMethod != "Swish" {
		t.Fatalf("order = %+v", out)
	}

	if rec := get(r, "/api/v1/orders/ORD-404"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing order status = %d", rec.Code)
	}
}

func TestRecentOrdersClampsAndFailsClosed(t *testing.T) {
	orders, payments := fixtures()
	r := setup(orders, payments)

	if rec := get(r, "/api/v1/orders/recent?count=5000"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if orders.limit != application.DefaultMaxQueryCount {
		t.Fatalf("limit = %d, want clamp to %d", orders.limit, application.DefaultMaxQueryCount)
	}

	orders.err = errors.New("db down")
	if rec := get(r, "/api/v1/orders/recent"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCustomerOrders(t *testing.T) {
	rec := get(setup(fixtures()), "/api/v1/customers/CUST-101/orders")
	var out []application.OrderDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].CustomerID != "CUST-101" {
		t.Fatalf("orders = %+v", out)
	}
}
