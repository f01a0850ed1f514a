package mq

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

// SecurityConfig Kafka 认证与传输加密配置
type SecurityConfig struct {
	// PLAINTEXT, SSL, SASL_PLAINTEXT, SASL_SSL
	Protocol string
	// PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	SASLMechanism      string
	Username           string
	Password           string
	CALocation         string
	InsecureSkipVerify bool
}

func (s SecurityConfig) protocol() string {
	p := strings.ToUpper(strings.TrimSpace(s.Protocol))
	if p == "" {
		return "PLAINTEXT"
	}
	return p
}

func (s SecurityConfig) usesSASL() bool {
	return strings.HasPrefix(s.protocol(), "SASL_")
}

func (s SecurityConfig) usesTLS() bool {
	p := s.protocol()
	return p == "SSL" || p == "SASL_SSL"
}

// saslMechanism 根据配置构建 SASL 机制，未启用 SASL 时返回 nil
func (s SecurityConfig) saslMechanism() (sasl.Mechanism, error) {
	if !s.usesSASL() {
		return nil, nil
	}
	switch strings.ToUpper(strings.TrimSpace(s.SASLMechanism)) {
	case "", "PLAIN":
		return plain.Mechanism{Username: s.Username, Password: s.Password}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, s.Username, s.Password)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, s.Username, s.Password)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism: %s", s.SASLMechanism)
	}
}

// tlsConfig 构建 TLS 配置，未启用 TLS 时返回 nil
func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.usesTLS() {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: s.InsecureSkipVerify, //nolint:gosec
	}
	if s.CALocation != "" {
		pem, err := os.ReadFile(s.CALocation)
		if err != nil {
			return nil, fmt.Errorf("read kafka ca %s: %w", s.CALocation, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", s.CALocation)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}
