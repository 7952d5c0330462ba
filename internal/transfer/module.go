package transfer

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgconfig"
	"github.com/ruhanslop/tabpipe/internal/pkg/pkgmetrics"
	"github.com/ruhanslop/tabpipe/internal/pkg/pkgrouter"
	"github.com/ruhanslop/tabpipe/internal/pkg/pkgroutine"
	"github.com/ruhanslop/tabpipe/internal/pkg/pkguid"
	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/event"
	"github.com/ruhanslop/tabpipe/internal/transfer/inbound"
	"github.com/ruhanslop/tabpipe/internal/transfer/spool"
	"github.com/ruhanslop/tabpipe/internal/transfer/store"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

type Dependency struct {
	Config    pkgconfig.Config
	Goroutine *pkgroutine.Manager
	Router    *pkgrouter.Router
	Metrics   *pkgmetrics.Metrics
	Context   context.Context
	ID        pkguid.StringID
}

func New(dep Dependency) (func(context.Context) error, error) {
	sp, err := spool.New(dep.Config.GetString("modules.transfer.spool_dir"))
	if err != nil {
		return nil, err
	}

	storage := store.NewSessionStore()
	bus := event.NewBus(256)
	consumer := event.NewCleanupConsumer(bus, sp, event.ConsumerConfig{
		Workers:     2,
		MaxRetries:  3,
		BaseBackoff: 200 * time.Millisecond,
	})
	consumer.Start()

	if dep.ID == nil {
		dep.ID = pkguid.NewUUID()
	}

	uc := usecase.New(usecase.Dependency{
		Store:   storage,
		Spool:   sp,
		Events:  bus,
		Runner:  dep.Goroutine,
		Metrics: dep.Metrics,
		ID:      dep.ID,
		RootCtx: dep.Context,
		Config: usecase.Config{
			MaxUploadBytes: dep.Config.GetInt("modules.transfer.max_upload_bytes"),
			AllowedExts:    dep.Config.GetArray("modules.transfer.allowed_extensions"),
			WaitTimeout:    time.Duration(dep.Config.GetInt("modules.transfer.wait_timeout_seconds")) * time.Second,
			PreviewMaxRows: int(dep.Config.GetInt("modules.transfer.preview_max_rows")),
		},
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	startJanitor(dep, storage, bus)

	return consumer.Stop, nil
}

// startJanitor evicts idle sessions on a fixed cadence and hands their
// spool files to the cleanup consumer. Event IDs come from a snowflake node
// so retried publishes stay deduplicable.
func startJanitor(dep Dependency, storage *store.SessionStore, bus *event.Bus) {
	ttl := time.Duration(dep.Config.GetInt("modules.transfer.session_ttl_minutes")) * time.Minute
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	sf, err := pkguid.NewSnowflake()
	if err != nil {
		slog.Warn("failed to init snowflake node for janitor, events will be unkeyed", "error", err)
	}

	dep.Goroutine.Go(dep.Context, func(ctx context.Context) error {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			for _, evicted := range storage.EvictIdle(ttl) {
				eventID := ""
				if sf != nil {
					eventID = strconv.FormatInt(sf.Generate(), 10)
				}

				cleanup := entity.SpoolCleanupEvent{
					EventID:   eventID,
					SessionID: evicted.SessionID,
					Paths:     evicted.Paths,
				}
				if err := bus.Publish(ctx, cleanup); err != nil {
					slog.WarnContext(ctx, "failed to publish eviction cleanup", "session_id", evicted.SessionID, "error", err)
				}
			}
		}
	})
}
