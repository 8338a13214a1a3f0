package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/bus"
	"github.com/odvcencio/extbridge/pkg/cloud"
	"github.com/odvcencio/extbridge/pkg/config"
	"github.com/odvcencio/extbridge/pkg/contextmenu"
	"github.com/odvcencio/extbridge/pkg/ipc"
	"github.com/odvcencio/extbridge/pkg/logging"
	"github.com/odvcencio/extbridge/pkg/messaging"
	"github.com/odvcencio/extbridge/pkg/storage"
	"github.com/odvcencio/extbridge/pkg/syncstore"
	"github.com/odvcencio/extbridge/pkg/tabs"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

// app is the wired background process.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	hub     *telemetry.Hub
	tracer  *telemetry.TracerProvider
	store   *storage.Store
	sync    syncstore.Store
	chunker *cloud.Chunker
	managed *config.ManagedStore
	relay   *messaging.Relay
	server  *ipc.Server

	// Present only when a bus is configured.
	bus       bus.MessageBus
	substrate *ipc.BusSubstrate
	host      *tabs.BusHost
	tabs      *tabs.Manager
	icon      *tabs.Icon
	menu      *contextmenu.Menu

	stop    context.CancelFunc
	cleanup []func()
}

// newApp builds every component cfg asks for and starts the background
// pieces. The HTTP server is left to the caller.
func newApp(parent context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	ctx, stop := context.WithCancel(parent)
	a := &app{cfg: cfg, logger: logger, stop: stop, hub: telemetry.NewHub()}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	if cfg.Telemetry.Tracing {
		tp, err := telemetry.NewTracerProvider(cfg.Telemetry.ServiceName, os.Stderr)
		if err != nil {
			return nil, err
		}
		a.tracer = tp
	}

	a.store, err = storage.New(cfg.Storage.Path, storage.WithLogger(logging.For(logger, logging.CategoryStorage)))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store.AddObserver(storage.ObserverFunc(func(e storage.Event) {
		a.hub.Publish(telemetry.Event{
			Type:      telemetry.EventStorageChanged,
			Timestamp: e.Timestamp,
			Data:      map[string]any{"change": string(e.Type), "keys": e.Keys},
		})
	}))

	if err := a.openBus(); err != nil {
		return nil, err
	}
	if err := a.openSyncStore(ctx); err != nil {
		return nil, err
	}

	a.chunker = cloud.NewChunker(a.sync, a.store.LocalStorage(), cfg.Flavor,
		cloud.WithLogger(logging.For(logger, logging.CategoryCloud)),
		cloud.WithEvents(a.hub),
	)

	a.managed = config.NewManagedStore(cfg.Managed.Path)
	a.managed.SetLogger(logging.For(logger, logging.CategoryConfig))
	if cfg.Managed.Watch {
		go func() {
			if err := a.managed.Watch(ctx); err != nil {
				logger.Warn().Err(err).Msg("managed storage watcher stopped")
			}
		}()
	}

	relayOpts := []messaging.Option{
		messaging.WithLogger(logging.For(logger, logging.CategoryRelay)),
		messaging.WithEvents(a.hub),
		messaging.WithUserStylesheets(cfg.Flavor.Has("user_stylesheet")),
		messaging.WithHostTimeout(cfg.Bus.Timeout),
		messaging.WithContext(ctx),
	}
	if a.bus != nil {
		a.host = tabs.NewBusHost(a.bus, cfg.Bus.Timeout, logging.For(logger, logging.CategoryTabs))
		relayOpts = append(relayOpts, messaging.WithStyleInjector(a.host))
	}
	a.relay = messaging.NewRelay(relayOpts...)

	if err := a.relay.Listen(cloud.Channel, a.chunker.Handler(ctx)); err != nil {
		return nil, err
	}
	if err := a.relay.Listen(storage.Channel, a.store.Handler()); err != nil {
		return nil, err
	}

	a.server = ipc.NewServer(ipc.Config{
		BindAddress:    cfg.Server.Bind,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxPorts:       cfg.Server.MaxPorts,
	}, a.relay, a.hub,
		ipc.WithLogger(logging.For(logger, logging.CategoryIPC)),
		ipc.WithHealthCheck(a.store.DB().PingContext),
	)

	substrates := []messaging.Substrate{a.server}
	if a.bus != nil {
		if err := a.startHostBridge(ctx); err != nil {
			return nil, err
		}
		substrates = append(substrates, a.substrate)
	}

	a.relay.Setup(newDefaultHandler(ctx, a), substrates...)
	return a, nil
}

func (a *app) openBus() error {
	switch a.cfg.Bus.Backend {
	case config.BusBackendMemory:
		a.bus = bus.NewMemoryBus()
	case config.BusBackendNATS:
		nb, err := bus.NewNATSBus(bus.Config{
			URL:     a.cfg.Bus.URL,
			Name:    a.cfg.Bus.Name,
			Timeout: a.cfg.Bus.Timeout,
		})
		if err != nil {
			return err
		}
		a.bus = nb
	}
	return nil
}

func (a *app) openSyncStore(ctx context.Context) error {
	q := syncstore.Quotas{
		QuotaBytes:                  a.cfg.Sync.QuotaBytes,
		QuotaBytesPerItem:           a.cfg.Sync.QuotaBytesPerItem,
		MaxItems:                    a.cfg.Sync.MaxItems,
		MaxWriteOperationsPerMinute: a.cfg.Sync.MaxWriteOperationsPerMinute,
	}
	if a.cfg.Sync.Backend != config.SyncBackendNATS {
		a.sync = syncstore.NewMemoryStore(q, syncstore.WithPartialWrites(a.cfg.Flavor.Has("firefox")))
		return nil
	}
	nb, ok := a.bus.(*bus.NATSBus)
	if !ok {
		return errors.New("nats sync store requires the nats bus")
	}
	store, err := syncstore.NewNATSStore(ctx, nb.JetStream(), a.cfg.Sync.Bucket, q)
	if err != nil {
		return err
	}
	a.sync = store
	return nil
}

// startHostBridge exposes ports on the bus and drives the browser host
// through it. Host tab removals tear down the tab's ports.
func (a *app) startHostBridge(ctx context.Context) error {
	ipcLogger := logging.For(a.logger, logging.CategoryIPC)
	a.substrate = ipc.NewBusSubstrate(a.bus, ipc.WithBusLogger(ipcLogger))
	if err := a.substrate.Start(ctx); err != nil {
		return err
	}
	ipc.ForwardEvents(ctx, a.hub, a.bus, ipcLogger)

	tabsLogger := logging.For(a.logger, logging.CategoryTabs)
	a.menu = contextmenu.New(a.host, logging.For(a.logger, logging.CategoryMenus))
	a.menu.SetOnMustUpdate(func(tabID int) {
		a.relay.Broadcast(map[string]any{"what": "contextMenuMustUpdate", "tabId": tabID})
	})
	a.tabs = tabs.NewManager(a.host, tabs.WithLogger(tabsLogger))
	a.icon = tabs.NewIcon(a.host, a.host, a.cfg.Telemetry.ServiceName,
		tabs.WithIconLogger(tabsLogger),
		tabs.WithMustUpdate(a.menu.OnMustUpdate),
	)

	events := &tabEvents{relay: a.relay, hub: a.hub}
	listeners := []func() (func(), error){
		func() (func(), error) { return a.host.OnActivated(ctx, a.menu.OnMustUpdate) },
		func() (func(), error) { return a.host.OnRemoved(ctx, a.relay.OnTabRemoved) },
		func() (func(), error) { return a.host.OnNavigation(ctx, events.listeners()) },
	}
	for _, listen := range listeners {
		unlisten, err := listen()
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, unlisten)
	}
	return nil
}

// Close releases everything newApp opened, in reverse order.
func (a *app) Close(ctx context.Context) {
	if a.stop != nil {
		a.stop()
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	if a.substrate != nil {
		a.substrate.Stop()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Debug().Err(err).Msg("closing bus")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing storage")
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Debug().Err(err).Msg("flushing traces")
		}
	}
	a.hub.Close()
}
