package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
)

// Remover deletes one spool path. *spool.Spool satisfies this.
type Remover interface {
	Remove(path string) error
}

type ConsumerConfig struct {
	Workers     int
	MaxRetries  int
	BaseBackoff time.Duration
}

// CleanupConsumer drains the bus and removes spool files left behind by
// superseded uploads and evicted sessions. Removal is retried with
// exponential backoff; duplicate events are dropped by ID.
type CleanupConsumer struct {
	bus         *Bus
	remover     Remover
	workers     int
	maxRetries  int
	baseBackoff time.Duration
	seen        sync.Map
	wg          sync.WaitGroup
}

func NewCleanupConsumer(bus *Bus, remover Remover, cfg ConsumerConfig) *CleanupConsumer {
	workers := cfg.Workers
	if workers < 1 {
		workers = 2
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseBackoff := cfg.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}

	return &CleanupConsumer{
		bus:         bus,
		remover:     remover,
		workers:     workers,
		maxRetries:  maxRetries,
		baseBackoff: baseBackoff,
	}
}

func (c *CleanupConsumer) Start() {
	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
}

func (c *CleanupConsumer) Stop(ctx context.Context) error {
	if c.bus != nil {
		c.bus.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CleanupConsumer) worker() {
	defer c.wg.Done()

	for event := range c.bus.Subscribe() {
		c.processEvent(event)
	}
}

func (c *CleanupConsumer) processEvent(event entity.SpoolCleanupEvent) {
	if c.remover == nil {
		return
	}

	if event.EventID != "" {
		if _, loaded := c.seen.LoadOrStore(event.EventID, struct{}{}); loaded {
			slog.Info("skip duplicate cleanup event", "event_id", event.EventID, "session_id", event.SessionID)
			return
		}
	}

	backoff := c.baseBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := c.removeAll(event.Paths)
		if err == nil {
			return
		}

		if attempt == c.maxRetries {
			slog.Error("failed to remove spool files after retries", "event_id", event.EventID, "session_id", event.SessionID, "error", err)
			return
		}

		if !sleepBackoff(backoff) {
			return
		}
		backoff *= 2
	}
}

func (c *CleanupConsumer) removeAll(paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := c.remover.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sleepBackoff(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
	return true
}
