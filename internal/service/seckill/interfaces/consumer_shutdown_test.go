// internal/service/seckill/interfaces/consumer_shutdown_test.go
package interfaces

import (
	"context"
	"testing"
	"time"

	"flashmall/internal/pkg/mq"
)

// The consumer adapters share a shutdown protocol: Stop flips the stop flag,
// closes the reader, and waits for the consume goroutine to drain. The flag
// is written by Stop and read by the goroutine concurrently, so these tests
// run Start followed immediately by Stop and must stay clean under -race.

func waitForStop(t *testing.T, name string, stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s did not stop within 5s", name)
	}
}

func TestTaskConsumerStartStop(t *testing.T) {
	reader := mq.NewKafkaReader([]string{"localhost:9092"}, "test-order-creation", "test-fulfillment-group")
	adapter := NewTaskConsumerAdapter(reader, nil, nil)

	ctx := context.Background()
	adapter.Start(ctx)
	waitForStop(t, "task consumer", func() { adapter.Stop(ctx) })
}

func TestExpiryConsumerStartStop(t *testing.T) {
	reader := mq.NewKafkaReader([]string{"localhost:9092"}, "test-order-expiry", "test-expiry-group")
	adapter := NewExpiryConsumerAdapter(reader, nil, nil)

	ctx := context.Background()
	adapter.Start(ctx)
	waitForStop(t, "expiry consumer", func() { adapter.Stop(ctx) })
}

func TestDltConsumerStartStop(t *testing.T) {
	reader := mq.NewKafkaReader([]string{"localhost:9092"}, "test-dlt", "test-dlt-group")
	adapter := NewDltConsumerAdapter(reader)

	ctx := context.Background()
	adapter.Start(ctx)
	waitForStop(t, "dlt consumer", func() { adapter.Stop(ctx) })
}
