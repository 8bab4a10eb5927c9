// fanride runs the event-sourced write path, the change-feed projector,
// the websocket hub, and (optionally) the AFL feed ingestion worker as
// one monolith process, mirroring the donor's single-binary
// cmd/syntrix/main.go startup shape but without its gRPC server or
// multi-service deployment-mode switch, neither of which FanRide needs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fanride/internal/config"
	"fanride/internal/eventstore"
	"fanride/internal/httpapi"
	"fanride/internal/hub"
	"fanride/internal/ingestion"
	"fanride/internal/logging"
	"fanride/internal/notify"
	notifymemory "fanride/internal/notify/memory"
	notifynats "fanride/internal/notify/nats"
	"fanride/internal/projector"
	"fanride/internal/readmodel"
	"fanride/internal/server"
	"fanride/internal/store"
	"fanride/internal/store/memory"
	"fanride/internal/store/mongo"
)

func main() {
	configDir := flag.String("config-dir", ".", "directory containing config.yml and config.local.yml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fanride: config error:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintln(os.Stderr, "fanride: logging init error:", err)
		os.Exit(1)
	}
	defer logging.Shutdown()

	if err := run(cfg); err != nil {
		slog.Error("fanride: fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeBackend()

	provider, err := openNotifyProvider(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("open notify provider: %w", err)
	}
	defer provider.Close()

	bus := notify.NewBus(provider)
	publisher, err := bus.Publisher()
	if err != nil {
		return fmt.Errorf("open publisher: %w", err)
	}
	consumer, err := bus.Consumer()
	if err != nil {
		return fmt.Errorf("open consumer: %w", err)
	}

	events := eventstore.New(backend)
	reads := readmodel.New(backend)
	proj := projector.New(backend, publisher)
	h := hub.New()

	handler := &httpapi.Handler{
		Events: events,
		Reads:  reads,
		Hub:    h,
		Health: httpapi.NewHealthChecker(2*time.Second,
			httpapi.SubCheck{Name: "store", Func: func(ctx context.Context) error {
				return pingStore(ctx, backend)
			}},
			httpapi.SubCheck{Name: "projector", Func: func(ctx context.Context) error {
				return proj.Alive(30 * time.Second)
			}},
			httpapi.SubCheck{Name: "hub", Func: func(ctx context.Context) error {
				return h.Alive()
			}},
		),
	}

	srv := server.New(cfg.HTTP.Addr, httpapi.Wrap(handler.Routes()), cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.IdleTimeout)

	srv.Add(server.NamedService("hub", h.Run))
	srv.Add(server.NamedService("hub-bridge", func(ctx context.Context) error {
		return hub.RunBridge(ctx, h, consumer)
	}))

	mode := projector.Live
	if cfg.ChangeFeed.Rebuild() {
		mode = projector.Rebuild
	}
	srv.Add(server.NamedService("projector", func(ctx context.Context) error {
		return proj.Run(ctx, mode)
	}))

	if cfg.AflFeed.Enabled {
		feed := ingestion.NewHTTPFeedClient(cfg.AflFeed.Endpoint, cfg.AflFeed.APIKeyHeader, cfg.AflFeed.APIKey)
		worker := ingestion.New(ingestion.Config{
			StreamID:     cfg.AflFeed.StreamID,
			PollInterval: cfg.AflFeed.PollInterval(),
		}, feed, events, publisher)
		srv.Add(server.NamedService("ingestion", func(ctx context.Context) error {
			worker.Run(ctx)
			return nil
		}))
	}

	slog.Info("fanride: starting", "addr", cfg.HTTP.Addr, "aflFeedEnabled", cfg.AflFeed.Enabled, "notifyProvider", cfg.Notify.Provider)
	return srv.Run(ctx)
}

// openBackend selects the document-store backend. mongodb:// and
// mongodb+srv:// URIs connect to a real cluster; any other scheme (used
// only by local/dev config files) falls back to the in-memory backend so
// the binary still starts without a live database.
func openBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, func(), error) {
	if !isMongoURI(cfg.MongoURI) {
		slog.Warn("fanride: store.mongo_uri is not a mongodb:// URI, using in-memory backend", "uri", cfg.MongoURI)
		return memory.New(), func() {}, nil
	}

	b, err := mongo.New(ctx, cfg.MongoURI, cfg.Database, cfg.Collections["es"], cfg.Collections["leases"])
	if err != nil {
		return nil, nil, err
	}
	return b, func() { _ = b.Close(context.Background()) }, nil
}

func isMongoURI(uri string) bool {
	return strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://")
}

func openNotifyProvider(ctx context.Context, cfg config.NotifyConfig) (notify.Provider, error) {
	if cfg.Provider == "nats" {
		p, err := notifynats.NewProvider(cfg.NatsURL)
		if err != nil {
			return nil, err
		}
		if err := p.Connect(ctx); err != nil {
			return nil, err
		}
		return p, nil
	}
	return notifymemory.New(), nil
}

func pingStore(ctx context.Context, backend store.Backend) error {
	_, err := backend.Query(ctx, store.Query{Container: "es", Limit: 1})
	return err
}
