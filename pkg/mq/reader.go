package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wyfcoding/orderpipeline/pkg/logger"
)

// ReaderConfig 消费者配置
type ReaderConfig struct {
	Brokers  []string
	ClientID string
	Security SecurityConfig
	GroupID  string
	Topics   []string
	// earliest, latest
	AutoOffsetReset string
	// 为 true 时由 reader 按 AutoCommitInterval 周期提交，否则需显式 CommitMessages
	EnableAutoCommit   bool
	AutoCommitInterval time.Duration
	SessionTimeout     time.Duration
	// 单次拉取在 broker 端的最长等待时间
	MaxWait time.Duration
}

// NewReader 创建消费组 Reader
func NewReader(cfg ReaderConfig) (*kafka.Reader, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("mq: no brokers configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("mq: group id is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("mq: at least one topic is required")
	}

	mechanism, err := cfg.Security.saslMechanism()
	if err != nil {
		return nil, err
	}
	tlsCfg, err := cfg.Security.tlsConfig()
	if err != nil {
		return nil, err
	}

	startOffset := kafka.FirstOffset
	if strings.EqualFold(cfg.AutoOffsetReset, "latest") {
		startOffset = kafka.LastOffset
	}

	// CommitInterval 为 0 时 CommitMessages 同步提交
	var commitInterval time.Duration
	if cfg.EnableAutoCommit {
		commitInterval = cfg.AutoCommitInterval
		if commitInterval <= 0 {
			commitInterval = 5 * time.Second
		}
	}

	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    cfg.Topics,
		StartOffset:    startOffset,
		CommitInterval: commitInterval,
		SessionTimeout: cfg.SessionTimeout,
		MaxWait:        maxWait,
		MaxBytes:       10e6,
		Dialer: &kafka.Dialer{
			ClientID:      cfg.ClientID,
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: mechanism,
			TLS:           tlsCfg,
		},
		Logger:      kafkaLogger("consumer", false),
		ErrorLogger: kafkaLogger("consumer", true),
	})

	logger.Info(context.Background(), "kafka reader created",
		"brokers", cfg.Brokers,
		"topics", cfg.Topics,
		"group_id", cfg.GroupID,
		"auto_offset_reset", cfg.AutoOffsetReset,
		"auto_commit", cfg.EnableAutoCommit,
		"security", cfg.Security.protocol(),
	)
	return reader, nil
}
