package app

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/config"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/kvstore"
	"github.com/vk/flowgrid/internal/kvstore/file"
	"github.com/vk/flowgrid/internal/kvstore/memory"
	"github.com/vk/flowgrid/internal/kvstore/postgres"
	"github.com/vk/flowgrid/modules/api"
	"github.com/vk/flowgrid/modules/message"
	"github.com/vk/flowgrid/modules/notification"
)

// openBackend creates the durable store selected by cfg.
func (a *App) openBackend(ctx context.Context, cfg *config.Config) (kvstore.Backend, error) {
	logger := ctxlog.FromContext(ctx)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Debug("Using in-memory workflow store.")
		return kvstore.NewCollection(memory.New(), cfg.Store.Key), nil
	case config.DriverFile:
		kv, err := file.New(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using file workflow store.", "path", kv.Path(cfg.Store.Key))
		return kvstore.NewCollection(kv, cfg.Store.Key), nil
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			pool.Close()
			return nil
		})
		logger.Debug("Using postgres workflow store.")
		return kvstore.NewCollection(postgres.New(pool), cfg.Store.Key), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// defaultCapabilities builds the production capabilities from cfg. The chat
// capability is only present when a chat URL is configured.
func (a *App) defaultCapabilities(ctx context.Context, cfg *config.Config, out io.Writer) (capability.Set, error) {
	httpClient := api.NewClient(cfg.Capabilities.HTTP.Timeout)
	a.onClose(func(context.Context) error {
		httpClient.CloseIdleConnections()
		return nil
	})
	caps := capability.Set{
		HTTP:     httpClient,
		Notifier: notification.NewPrinter(out),
	}

	if cfg.Capabilities.Chat.URL == "" {
		ctxlog.FromContext(ctx).Debug("No chat URL configured, chat capability disabled.")
		return caps, nil
	}
	m, err := message.NewSocketIOMessenger(message.Config{
		URL:       cfg.Capabilities.Chat.URL,
		Namespace: cfg.Capabilities.Chat.Namespace,
		Event:     cfg.Capabilities.Chat.Event,
	})
	if err != nil {
		return capability.Set{}, fmt.Errorf("configuring chat capability: %w", err)
	}
	a.onClose(func(context.Context) error { return m.Close() })
	caps.Messenger = m
	return caps, nil
}
