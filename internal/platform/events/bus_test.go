package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stocktide/api/internal/services"
)

func testEvent(entity, op, id string) services.MutationEvent {
	return services.MutationEvent{
		Entity:     entity,
		Op:         op,
		EntityID:   id,
		ActorID:    "tester",
		OccurredAt: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first, err := bus.Subscribe(4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	second, err := bus.Subscribe(4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	event := testEvent("order", "create", "ord_001")
	if err := bus.PublishMutation(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, ch := range []<-chan services.MutationEvent{first, second} {
		select {
		case got := <-ch:
			if got.EntityID != "ord_001" || got.Op != "create" {
				t.Fatalf("unexpected event: %+v", got)
			}
		default:
			t.Fatal("expected a buffered event")
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	var dropped []string
	bus := NewBus(WithBusLogger(func(_ context.Context, event string, fields map[string]any) {
		dropped = append(dropped, fields["id"].(string))
		if event != "events.bus.dropped" {
			t.Fatalf("unexpected log event %q", event)
		}
	}))
	defer bus.Close()

	ch, err := bus.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx := context.Background()
	if err := bus.PublishMutation(ctx, testEvent("order", "create", "ord_001")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.PublishMutation(ctx, testEvent("order", "update", "ord_002")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(dropped) != 1 || dropped[0] != "ord_002" {
		t.Fatalf("dropped = %v, want [ord_002]", dropped)
	}

	got := <-ch
	if got.EntityID != "ord_001" {
		t.Fatalf("delivered event = %q, want ord_001", got.EntityID)
	}
}

func TestBusCountsDropsUnderConcurrentPublishers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	if _, err := bus.Subscribe(1); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	const publishers = 8
	const perPublisher = 50

	var wg sync.WaitGroup
	wg.Add(publishers)
	for p := 0; p < publishers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				_ = bus.PublishMutation(context.Background(), testEvent("order", "update", "ord_race"))
			}
		}()
	}
	wg.Wait()

	// One event fits the buffer; every other publish must be counted as a drop.
	if got, want := bus.Dropped(), uint64(publishers*perPublisher-1); got != want {
		t.Fatalf("dropped = %d, want %d", got, want)
	}
}

func TestBusCloseStopsPublishing(t *testing.T) {
	bus := NewBus()
	ch, err := bus.Subscribe(1)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Fatal("subscriber channel should be closed")
	}
	if err := bus.PublishMutation(context.Background(), testEvent("order", "create", "ord_001")); err == nil {
		t.Fatal("expected publish after close to fail")
	}
	if _, err := bus.Subscribe(1); err == nil {
		t.Fatal("expected subscribe after close to fail")
	}
}

type publisherFunc func(ctx context.Context, event services.MutationEvent) error

func (f publisherFunc) PublishMutation(ctx context.Context, event services.MutationEvent) error {
	return f(ctx, event)
}

func TestMultiPublisherFansOutAndJoinsErrors(t *testing.T) {
	var delivered int
	ok := publisherFunc(func(context.Context, services.MutationEvent) error {
		delivered++
		return nil
	})
	failure := errors.New("pubsub down")
	bad := publisherFunc(func(context.Context, services.MutationEvent) error {
		return failure
	})

	multi := NewMultiPublisher(ok, nil, bad)
	err := multi.PublishMutation(context.Background(), testEvent("product", "update", "prd_001"))
	if !errors.Is(err, failure) {
		t.Fatalf("err = %v, want wrapped %v", err, failure)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
}

func TestMultiPublisherWithoutFailures(t *testing.T) {
	multi := NewMultiPublisher(publisherFunc(func(context.Context, services.MutationEvent) error {
		return nil
	}))
	if err := multi.PublishMutation(context.Background(), testEvent("expense", "delete", "exp_001")); err != nil {
		t.Fatalf("publish: %v", err)
	}
}
