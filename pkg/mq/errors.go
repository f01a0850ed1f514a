package mq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/segmentio/kafka-go"
)

// ErrProducerClosed 生产者已关闭
var ErrProducerClosed = errors.New("mq: producer closed")

// DeliveryError 消息投递失败的结构化描述
type DeliveryError struct {
	Topic string
	Key   string
	// Kafka 协议错误码，非协议错误为 0
	Code int
	// 可读原因
	Reason string
	// 重试可能成功
	Retriable bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s (key=%s) failed: code=%d reason=%s retriable=%t",
		e.Topic, e.Key, e.Code, e.Reason, e.Retriable)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// classifyDelivery 将 writer 返回的错误转换为 DeliveryError
func classifyDelivery(topic, key string, err error) *DeliveryError {
	de := &DeliveryError{Topic: topic, Key: key, Err: err, Reason: err.Error()}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				err = e
				break
			}
		}
	}

	var kerr kafka.Error
	var netErr net.Error
	switch {
	case errors.As(err, &kerr):
		de.Code = int(kerr)
		de.Reason = kerr.Title()
		de.Retriable = kerr.Temporary()
	case errors.Is(err, context.DeadlineExceeded):
		de.Reason = "timed out waiting for acknowledgement"
		de.Retriable = true
	case errors.Is(err, context.Canceled):
		de.Reason = "canceled"
	case errors.Is(err, io.ErrClosedPipe), errors.Is(err, ErrProducerClosed):
		de.Reason = "producer closed"
	case errors.As(err, &netErr):
		de.Reason = "network: " + netErr.Error()
		de.Retriable = true
	}
	return de
}

// IsFatal 判断消费端错误是否不可恢复，遇到后应停止消费
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	// Reader 关闭后 FetchMessage 返回 io.EOF
	if errors.Is(err, io.EOF) {
		return true
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		switch kerr {
		case kafka.SASLAuthenticationFailed,
			kafka.UnsupportedSASLMechanism,
			kafka.IllegalSASLState,
			kafka.TopicAuthorizationFailed,
			kafka.GroupAuthorizationFailed,
			kafka.ClusterAuthorizationFailed,
			kafka.InvalidGroupId:
			return true
		}
	}
	return false
}

// IsBrokerError 判断是否为 Kafka 协议层错误
func IsBrokerError(err error) bool {
	var kerr kafka.Error
	return errors.As(err, &kerr)
}
