// Package domain 包含支付手续费的领域模型与计算规则
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrFeeNotFound 费率表中没有该支付方式的有效记录
	ErrFeeNotFound = errors.New("payment method fee not found")
	// ErrUnknownPaymentMethod 不在支付方式列表中
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
)

// 支付方式
const (
	MethodCreditCard   = "CreditCard"
	MethodDebitCard    = "DebitCard"
	MethodPayPal       = "PayPal"
	MethodApplePay     = "ApplePay"
	MethodGooglePay    = "GooglePay"
	MethodBankTransfer = "BankTransfer"
	MethodSwish        = "Swish"
	MethodUnknown      = "Unknown"
)

// PaymentMethodFee 某支付方式的手续费率（百分比，保留 3 位小数）
type PaymentMethodFee struct {
	ID            uint
	PaymentMethod string
	FeePercentage decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FeeRepository 费率表仓储
type FeeRepository interface {
	// GetActiveFee 未找到有效记录时返回 ErrFeeNotFound
	GetActiveFee(ctx context.Context, paymentMethod string) (*PaymentMethodFee, error)
	ListActive(ctx context.Context) ([]*PaymentMethodFee, error)
	// Upsert 按 PaymentMethod 创建或更新，并重新启用
	Upsert(ctx context.Context, fee *PaymentMethodFee) error
	Deactivate(ctx context.Context, paymentMethod string) error
	// SeedDefaults 仅写入缺失的默认费率
	SeedDefaults(ctx context.Context) error
}

// defaultFees 默认费率表，顺序即展示顺序
var defaultFees = []struct {
	method string
	pct    string
}{
	{MethodCreditCard, "2.0"},
	{MethodDebitCard, "0.9"},
	{MethodPayPal, "1.5"},
	{MethodApplePay, "1.2"},
	{MethodGooglePay, "1.1"},
	{MethodBankTransfer, "0.8"},
	{MethodSwish, "0.7"},
	{MethodUnknown, "1.5"},
}

// DefaultFees 返回默认费率表副本
func DefaultFees() []PaymentMethodFee {
	out := make([]PaymentMethodFee, 0, len(defaultFees))
	for _, f := range defaultFees {
		out = append(out, PaymentMethodFee{
			PaymentMethod: f.method,
			FeePercentage: decimal.RequireFromString(f.pct),
			IsActive:      true,
		})
	}
	return out
}

// DefaultFeePercentage 静态默认费率，未知方式按 Unknown 计
func DefaultFeePercentage(paymentMethod string) decimal.Decimal {
	method := NormalizePaymentMethod(paymentMethod)
	for _, f := range defaultFees {
		if f.method == method {
			return decimal.RequireFromString(f.pct)
		}
	}
	return decimal.RequireFromString("1.5")
}

// LookupPaymentMethod 大小写不敏感地查找标准名称，只有字面量 Unknown 才会匹配到 Unknown
func LookupPaymentMethod(paymentMethod string) (string, bool) {
	m := strings.TrimSpace(paymentMethod)
	for _, f := range defaultFees {
		if strings.EqualFold(f.method, m) {
			return f.method, true
		}
	}
	return "", false
}

// NormalizePaymentMethod 同 LookupPaymentMethod，但空值或无法识别时返回 Unknown，用于计费
func NormalizePaymentMethod(paymentMethod string) string {
	if m, ok := LookupPaymentMethod(paymentMethod); ok {
		return m
	}
	return MethodUnknown
}

// CalculateFeeAmount amount * pct / 100，按远离零方向四舍五入到 2 位小数
func CalculateFeeAmount(amount, feePercentage decimal.Decimal) decimal.Decimal {
	// decimal.Round 对 .5 采用远离零方向
	return amount.Mul(feePercentage).Shift(-2).Round(2)
}
