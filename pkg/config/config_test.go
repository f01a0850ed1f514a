package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const consumerTOML = `
service_name = "order-consumer"

[http]
port = 8082

[database]
driver = "postgres"
dsn = "host=localhost user=orders dbname=orders sslmode=disable"

[kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]

[kafka.consumer]
group_id = "orders-it"
enable_auto_commit = false
poll_timeout = "250ms"

[rate_limit.routes."/api/v1/customers/:id/orders"]
qps = 5
burst = 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, consumerTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceName != "order-consumer" || cfg.HTTP.Port != 8082 {
		t.Fatalf("unexpected service section: %+v %+v", cfg.ServiceName, cfg.HTTP)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Consumer.EnableAutoCommit {
		t.Fatal("enable_auto_commit should be false from file")
	}
	if cfg.Kafka.Consumer.PollTimeout != 250*time.Millisecond {
		t.Fatalf("poll_timeout = %s", cfg.Kafka.Consumer.PollTimeout)
	}
	// 默认值
	if cfg.Kafka.Topics.OrderEvents != "order-events" {
		t.Fatalf("order_events topic = %q", cfg.Kafka.Topics.OrderEvents)
	}
	if cfg.Kafka.Producer.FlushTimeout != 10*time.Second {
		t.Fatalf("flush_timeout = %s", cfg.Kafka.Producer.FlushTimeout)
	}
	if cfg.Fees.CacheTTL != 10*time.Minute || cfg.Payments.RecentCacheTTL != 2*time.Minute {
		t.Fatalf("cache ttls = %s / %s", cfg.Fees.CacheTTL, cfg.Payments.RecentCacheTTL)
	}
	if rl := cfg.RateLimit.Routes["/api/v1/customers/:id/orders"]; rl.QPS != 5 || rl.Burst != 10 {
		t.Fatalf("route rate limits = %+v", cfg.RateLimit.Routes)
	}
	if cfg.RateLimit.QPS != 50 {
		t.Fatalf("default qps = %d", cfg.RateLimit.QPS)
	}
	if err := cfg.ValidateConsumer(); err != nil {
		t.Fatalf("ValidateConsumer: %v", err)
	}
	if got := cfg.ConsumerTopics(); len(got) != 1 || got[0] != "order-events" {
		t.Fatalf("ConsumerTopics = %v", got)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("APP_KAFKA_BROKERS", "broker-a:9093,broker-b:9093,broker-c:9093")
	t.Setenv("APP_KAFKA_CONSUMER_GROUP_ID", "from-env")
	t.Setenv("APP_KAFKA_SECURITY_PROTOCOL", "SASL_SSL")

	cfg, err := Load(writeConfig(t, consumerTOML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Kafka.Brokers) != 3 || cfg.Kafka.Brokers[0] != "broker-a:9093" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.Consumer.GroupID != "from-env" {
		t.Fatalf("group_id = %q", cfg.Kafka.Consumer.GroupID)
	}
	if cfg.Kafka.Security.Protocol != "SASL_SSL" {
		t.Fatalf("protocol = %q", cfg.Kafka.Security.Protocol)
	}
}

func TestLoadRequiresFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadWithDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}
	if err := cfg.ValidateProducer(); err != nil {
		t.Fatalf("ValidateProducer: %v", err)
	}
	if cfg.Generator.MaxItems != 3 || cfg.Generator.MaxQuantity != 2 {
		t.Fatalf("generator defaults = %+v", cfg.Generator)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := LoadWithDefaults("")
	if err != nil {
		t.Fatalf("LoadWithDefaults: %v", err)
	}

	bad := *cfg
	bad.Kafka.Producer.Acks = "most"
	if err := bad.ValidateProducer(); err == nil {
		t.Error("expected invalid acks to fail")
	}

	bad = *cfg
	bad.Kafka.Consumer.AutoOffsetReset = "middle"
	bad.Database.DSN = "dsn"
	if err := bad.ValidateConsumer(); err == nil {
		t.Error("expected invalid auto_offset_reset to fail")
	}

	bad = *cfg
	bad.Database.DSN = "dsn"
	bad.RateLimit.Enabled = true
	bad.RateLimit.Routes = map[string]RouteRateLimit{"/api/v1/orders/:id": {QPS: 0}}
	if err := bad.ValidateConsumer(); err == nil {
		t.Error("expected zero route qps to fail")
	}

	bad = *cfg
	bad.Kafka.Security.Protocol = "KERBEROS"
	if err := bad.Validate(); err == nil {
		t.Error("expected unsupported protocol to fail")
	}
}
