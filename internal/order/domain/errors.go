package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrPaymentNotFound 支付记录不存在
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrDuplicateOrder 订单、事件或交易号已存在，属于业务重复而非系统故障
	ErrDuplicateOrder = errors.New("order already exists")
	// ErrBusinessRule 业务规则拒绝，消息不应重试
	ErrBusinessRule = errors.New("business rule violation")
)

// BusinessRuleError 描述被拒绝的具体规则
type BusinessRuleError struct {
	Rule   string
	Detail string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Detail)
}

func (e *BusinessRuleError) Unwrap() error { return ErrBusinessRule }

// NewBusinessRuleError 创建业务规则错误
func NewBusinessRuleError(rule, format string, args ...any) error {
	return &BusinessRuleError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}
