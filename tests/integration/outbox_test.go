package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/eventpublisher"
	"github.com/iho/goexchange/tests/testutil"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent
}

func (p *capturePublisher) Publish(_ context.Context, event *domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestOutboxDelivery(t *testing.T) {
	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	stack := testDB.NewStack()
	testDB.TruncateAll(ctx)
	stack.SeedAsset(t, "USD", 2, "1")

	record := stack.Fund(t, testutil.UserID("alice"), "USD", "5")

	pending, err := stack.Outbox.GetUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read outbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].AggregateID != record.ID || pending[0].EventType != domain.EventTypeTransactionCompleted {
		t.Errorf("unexpected event %+v", pending[0])
	}

	sink := &capturePublisher{}
	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: stack.Outbox,
		Publisher:  sink,
		Logger:     zerolog.Nop(),
		BatchSize:  10,
		Interval:   20 * time.Millisecond,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = publisher.Start(runCtx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for len(sink.types()) == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	if got := sink.types(); len(got) != 1 || got[0] != domain.EventTypeTransactionCompleted {
		t.Fatalf("expected one transaction.completed event, got %v", got)
	}

	pending, err = stack.Outbox.GetUnpublished(ctx, 10)
	if err != nil {
		t.Fatalf("failed to read outbox: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected outbox drained, got %d pending", len(pending))
	}
}
