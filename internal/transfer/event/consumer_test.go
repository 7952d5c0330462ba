package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

type removerFunc func(path string) error

func (f removerFunc) Remove(path string) error {
	return f(path)
}

func TestCleanupConsumerRetriesAndIdempotent(t *testing.T) {
	bus := NewBus(10)

	var attempts int32
	done := make(chan struct{})
	remover := removerFunc(func(path string) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("temporary failure")
		}
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	})

	consumer := NewCleanupConsumer(bus, remover, ConsumerConfig{
		Workers:     1,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
	})
	consumer.Start()

	event := entity.SpoolCleanupEvent{EventID: "evt-1", SessionID: "s1", Paths: []string{"/spool/a"}}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for remover")
	}

	if err := consumer.Stop(context.Background()); err != nil {
		t.Fatalf("stop consumer: %v", err)
	}

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCleanupConsumerRemovesAllPaths(t *testing.T) {
	bus := NewBus(10)

	var mu sync.Mutex
	removed := map[string]bool{}
	remover := removerFunc(func(path string) error {
		mu.Lock()
		removed[path] = true
		mu.Unlock()
		return nil
	})

	consumer := NewCleanupConsumer(bus, remover, ConsumerConfig{Workers: 2, BaseBackoff: time.Millisecond})
	consumer.Start()

	event := entity.SpoolCleanupEvent{EventID: "evt-2", SessionID: "s1", Paths: []string{"/spool/a", "/spool/b"}}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	if err := consumer.Stop(context.Background()); err != nil {
		t.Fatalf("stop consumer: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !removed["/spool/a"] || !removed["/spool/b"] {
		t.Fatalf("not all paths removed: %v", removed)
	}
}

func TestBusRejectsAfterClose(t *testing.T) {
	bus := NewBus(1)
	bus.Close()

	err := bus.Publish(context.Background(), entity.SpoolCleanupEvent{EventID: "evt-3"})
	if !errors.Is(err, ErrBusClosed) {
		t.Fatalf("expected ErrBusClosed, got %v", err)
	}
}

func TestBusClosePassesStalledPublisher(t *testing.T) {
	bus := NewBus(1)

	// Fill the buffer so the next publish blocks on the channel send.
	if err := bus.Publish(context.Background(), entity.SpoolCleanupEvent{EventID: "evt-4"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	published := make(chan error, 1)
	go func() {
		published <- bus.Publish(context.Background(), entity.SpoolCleanupEvent{EventID: "evt-5"})
	}()

	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		bus.Close()
		close(closed)
	}()

	select {
	case err := <-published:
		if !errors.Is(err, ErrBusClosed) {
			t.Fatalf("expected ErrBusClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publisher still blocked after close")
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close never returned")
	}

	// The event accepted before close stays available to consumers.
	if got := <-bus.Subscribe(); got.EventID != "evt-4" {
		t.Fatalf("unexpected drained event: %q", got.EventID)
	}
}
