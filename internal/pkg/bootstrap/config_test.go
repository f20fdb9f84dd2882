// internal/pkg/bootstrap/config_test.go
package bootstrap

import (
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PAYMENT_EXPIRY_LEVEL", "delay_topic_1m")

	c := defaultConfig()
	if len(c.Infra.Kafka.Brokers) != 2 || c.Infra.Kafka.Brokers[0] != "k1:9092" {
		t.Errorf("brokers = %v", c.Infra.Kafka.Brokers)
	}
	if c.App.PaymentExpiryLevel != "delay_topic_1m" {
		t.Errorf("payment expiry level = %s", c.App.PaymentExpiryLevel)
	}
	if c.App.MaxDeliveryRetries != 3 {
		t.Errorf("max delivery retries = %d", c.App.MaxDeliveryRetries)
	}
}

func TestApplyConfigOverridesDefaults(t *testing.T) {
	doc := `
app:
  paymentExpiryLevel: delay_topic_5s
  maxDeliveryRetries: 5
infra:
  mysql:
    dsn: testuser:pw@tcp(db:3306)/flashmall
`
	if err := applyConfig(doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := GetCurrentConfig()
	if c.App.PaymentExpiryLevel != "delay_topic_5s" {
		t.Errorf("payment expiry level = %s", c.App.PaymentExpiryLevel)
	}
	if c.App.MaxDeliveryRetries != 5 {
		t.Errorf("max delivery retries = %d", c.App.MaxDeliveryRetries)
	}
	if c.Infra.Mysql.DSN != "testuser:pw@tcp(db:3306)/flashmall" {
		t.Errorf("dsn = %s", c.Infra.Mysql.DSN)
	}
}

func TestApplyConfigRejectsInvalidYAML(t *testing.T) {
	before := GetCurrentConfig()
	if err := applyConfig("app: [not a mapping"); err == nil {
		t.Fatal("expected parse error")
	}
	if GetCurrentConfig() != before {
		t.Error("invalid document replaced the active config")
	}
}

func TestApplyConfigEmptyDocumentKeepsDefaults(t *testing.T) {
	if err := applyConfig(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if GetCurrentConfig().App.MaxDeliveryRetries != 3 {
		t.Error("empty document lost the defaults")
	}
}

func TestDelayLevelsKnown(t *testing.T) {
	// The payment window default must be a level the scheduler actually polls.
	if _, ok := DelayLevels[defaultConfig().App.PaymentExpiryLevel]; !ok {
		t.Errorf("default payment expiry level %q is not a delay level", defaultConfig().App.PaymentExpiryLevel)
	}
}
