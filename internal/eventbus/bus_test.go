package eventbus

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestPubSub(t *testing.T) {
	bus := New()
	var received []Event
	var mu sync.Mutex

	bus.Subscribe(TopicInboundMessage, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bus.Publish(TopicInboundMessage, "hello")
	bus.Publish(TopicInboundMessage, "world")

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 events, got %d", len(received))
	}
	if received[0].Payload != "hello" {
		t.Fatalf("expected 'hello', got %v", received[0].Payload)
	}
	if received[1].Payload != "world" {
		t.Fatalf("expected 'world', got %v", received[1].Payload)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()
	count := 0
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		bus.Subscribe(TopicError, func(e Event) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	bus.Publish(TopicError, "test")

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestUnsubscribedTopic(t *testing.T) {
	bus := New()
	// Should not panic
	bus.Publish(TopicLLMRetry, "no subscribers")
}

func TestNilBus(t *testing.T) {
	var bus *Bus
	// Components built without a bus publish into nothing.
	bus.Publish(TopicLLMAttempt, "dropped")
	bus.PublishAsync(TopicLLMAttempt, "dropped")
}

func TestPublishAsync(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	var topics []Topic
	for i := 0; i < 2; i++ {
		bus.Subscribe(TopicPlanCompleted, func(e Event) {
			defer wg.Done()
			mu.Lock()
			topics = append(topics, e.Topic)
			mu.Unlock()
		})
	}

	bus.PublishAsync(TopicPlanCompleted, "plan")
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(topics) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(topics))
	}
	for _, topic := range topics {
		if topic != TopicPlanCompleted {
			t.Fatalf("unexpected topic %q", topic)
		}
	}
}

func TestEventTimestamp(t *testing.T) {
	bus := New()
	var got Event
	bus.Subscribe(TopicStatusChange, func(e Event) { got = e })

	bus.Publish(TopicStatusChange, "ready")

	if got.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
	if got.Payload != "ready" {
		t.Fatalf("expected 'ready', got %v", got.Payload)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	var a, b int
	stopA := bus.Subscribe(TopicLLMAttempt, func(Event) { a++ })
	bus.Subscribe(TopicLLMAttempt, func(Event) { b++ })

	bus.Publish(TopicLLMAttempt, 1)
	stopA()
	stopA()
	bus.Publish(TopicLLMAttempt, 2)

	if a != 1 {
		t.Fatalf("expected removed handler to run once, got %d", a)
	}
	if b != 2 {
		t.Fatalf("expected remaining handler to run twice, got %d", b)
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	var logs bytes.Buffer
	bus := NewWithLogger(slog.New(slog.NewTextHandler(&logs, nil)))

	reached := false
	bus.Subscribe(TopicPlanFailed, func(Event) { panic("journal down") })
	bus.Subscribe(TopicPlanFailed, func(Event) { reached = true })

	bus.Publish(TopicPlanFailed, "x")

	if !reached {
		t.Fatal("expected later handler to run after a panic")
	}
	if !strings.Contains(logs.String(), "journal down") {
		t.Fatalf("expected panic to be logged, got %q", logs.String())
	}
}
