package event

import (
	"context"
	"errors"
	"sync"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

var ErrBusClosed = errors.New("event bus is closed")

// Bus carries spool cleanup requests from the pipeline to the cleanup
// consumer.
type Bus struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	done     chan struct{}
	ch       chan entity.SpoolCleanupEvent
}

func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}

	return &Bus{
		done: make(chan struct{}),
		ch:   make(chan entity.SpoolCleanupEvent, buffer),
	}
}

// Publish enqueues an event. A publisher blocked on a full buffer is
// released when ctx expires or the bus closes; the lock is never held
// across the send so Close cannot be stalled by a slow publisher.
func (b *Bus) Publish(ctx context.Context, event entity.SpoolCleanupEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.inflight.Add(1)
	b.mu.Unlock()
	defer b.inflight.Done()

	select {
	case b.ch <- event:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) Subscribe() <-chan entity.SpoolCleanupEvent {
	return b.ch
}

// Close rejects further publishes, releases blocked ones, and closes the
// event channel once the last in-flight publish has returned so consumers
// drain whatever was accepted.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.inflight.Wait()
	close(b.ch)
}
