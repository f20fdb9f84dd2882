// internal/service/seckill/infrastructure/dispatcher_test.go
package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flashmall/internal/service/seckill/domain"
)

type stubOutbox struct {
	mu          sync.Mutex
	due         []*domain.SeckillTask
	dispatched  []uint64
	rescheduled []uint64
}

func (o *stubOutbox) Create(_ context.Context, _ *domain.SeckillTask) error { return nil }

func (o *stubOutbox) FetchDue(_ context.Context, _ time.Time, limit int) ([]*domain.SeckillTask, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.due) > limit {
		return o.due[:limit], nil
	}
	return o.due, nil
}

func (o *stubOutbox) MarkDispatched(_ context.Context, id uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dispatched = append(o.dispatched, id)
	return nil
}

func (o *stubOutbox) Reschedule(_ context.Context, id uint64, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rescheduled = append(o.rescheduled, id)
	return nil
}

type stubPublisher struct {
	mu        sync.Mutex
	published []*domain.SeckillTask
	failTopic string
}

func (p *stubPublisher) Publish(_ context.Context, task *domain.SeckillTask) error {
	if task.Topic == p.failTopic {
		return errors.New("broker unreachable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, task)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func dueTask(id uint64, topic string) *domain.SeckillTask {
	return &domain.SeckillTask{
		ID:      id,
		OrderNo: "ord-1",
		Topic:   topic,
		Status:  domain.TaskPending,
		Payload: []byte(`{}`),
	}
}

func TestDispatchBatchPublishesAndMarks(t *testing.T) {
	outbox := &stubOutbox{due: []*domain.SeckillTask{
		dueTask(1, "topic-a"),
		dueTask(2, "topic-b"),
	}}
	publisher := &stubPublisher{}
	d := NewOutboxDispatcher(outbox, publisher, nil, time.Second)

	d.dispatchBatch(context.Background())

	if len(publisher.published) != 2 {
		t.Fatalf("published = %d, want 2", len(publisher.published))
	}
	if len(outbox.dispatched) != 2 {
		t.Fatalf("marked dispatched = %d, want 2", len(outbox.dispatched))
	}
	if len(outbox.rescheduled) != 0 {
		t.Errorf("rescheduled = %v, want none", outbox.rescheduled)
	}
}

func TestDispatchBatchReschedulesOnPublishFailure(t *testing.T) {
	outbox := &stubOutbox{due: []*domain.SeckillTask{
		dueTask(1, "broken-topic"),
		dueTask(2, "topic-b"),
	}}
	publisher := &stubPublisher{failTopic: "broken-topic"}
	d := NewOutboxDispatcher(outbox, publisher, nil, time.Second)

	d.dispatchBatch(context.Background())

	if len(outbox.rescheduled) != 1 || outbox.rescheduled[0] != 1 {
		t.Errorf("rescheduled = %v, want [1]", outbox.rescheduled)
	}
	// One failed task must not block the rest of the batch.
	if len(outbox.dispatched) != 1 || outbox.dispatched[0] != 2 {
		t.Errorf("dispatched = %v, want [2]", outbox.dispatched)
	}
}

func TestDispatchBatchEmptyOutbox(t *testing.T) {
	outbox := &stubOutbox{}
	publisher := &stubPublisher{}
	d := NewOutboxDispatcher(outbox, publisher, nil, time.Second)

	d.dispatchBatch(context.Background())

	if len(publisher.published) != 0 {
		t.Errorf("published = %d, want 0", len(publisher.published))
	}
}
