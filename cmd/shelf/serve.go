package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/modelshelf/modelshelf/internal/catalog/daemon"
	"github.com/modelshelf/modelshelf/internal/catalog/dashboard"
	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	"github.com/modelshelf/modelshelf/internal/inspect"
	"github.com/modelshelf/modelshelf/internal/logging"
	"github.com/modelshelf/modelshelf/internal/web"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Sync the catalog once and serve the web UI",
	Long: `Start the catalog browser.

On startup the catalog is reconciled with the root folder once. Later
re-syncs run from the settings page, or automatically when --watch is set
and the root folder changes.

Live sync events are streamed to browsers over a websocket:
  sync_started, sync_complete, sync_failed, entry_update, stats

Example usage:
  shelf serve                          # http://127.0.0.1:8000
  shelf serve --listen :9000 --watch   # all interfaces, re-sync on change

Endpoints:
  /            library
  /settings    root folder and re-sync
  /ws          dashboard events
  /health      liveness
  /metrics     Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", "", "address to listen on (default 127.0.0.1:8000)")
	flags.Bool("watch", false, "re-sync when the root folder changes")
	flags.Duration("debounce", 0, "quiet period before a watch-triggered re-sync (default 2s)")

	bindFlag(v, "listen", flags.Lookup("listen"))
	bindFlag(v, "watch", flags.Lookup("watch"))
	bindFlag(v, "debounce", flags.Lookup("debounce"))

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	logger := logging.L()

	store, typeID, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := dashboard.NewHub(&dashboard.Config{
		Welcome: welcome(store),
		Logger:  logger.Named("dashboard"),
	})
	trigger, err := daemon.NewTrigger(store, newReconciler(store, typeID), daemon.Config{
		DefaultRootDir: cfg.DefaultRootDir,
		Notifier:       dashboard.NewHandler(hub, store, logger.Named("dashboard")),
		Logger:         logger.Named("daemon"),
	})
	if err != nil {
		return err
	}

	// A failed startup sync is logged; the UI still comes up so the root
	// can be fixed from the settings page.
	if res, err := trigger.RunOnce(ctx); err != nil {
		logger.Warn("startup sync failed", zap.Error(err))
	} else {
		logger.Info("startup sync complete",
			zap.String("root", res.Root),
			zap.Int("created", len(res.Created)),
			zap.Int("updated", len(res.Updated)),
			zap.Int("deleted", len(res.Deleted)),
			zap.Int("failed", len(res.Failed)),
		)
	}

	inspector, err := inspect.New(inspect.Config{
		CachePath: cfg.InspectCache,
		Logger:    logger.Named("inspect"),
	})
	if err != nil {
		return err
	}
	defer inspector.Close()

	server, err := web.New(ctx, store, trigger, inspector, hub, web.Config{
		MediaRoot:      cfg.MediaRoot,
		DefaultRootDir: cfg.DefaultRootDir,
		PageSize:       cfg.PageSize,
		SyncWait:       cfg.SyncWait,
		Version:        Version,
		Logger:         logger.Named("web"),
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.Listen(cfg.Listen)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return server.Shutdown(shutdownTimeout)
	})
	if cfg.Watch {
		watcher, err := daemon.NewWatcher(trigger, daemon.WatcherConfig{
			Debounce: cfg.Debounce,
			Logger:   logger.Named("watch"),
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watcher: %w", err)
			}
			return nil
		})
	}

	fmt.Printf("Serving catalog on http://%s\n", cfg.Listen)
	fmt.Println("Press Ctrl+C to stop...")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("Server stopped")
	return nil
}

// welcome greets new dashboard clients with the current entry count.
func welcome(store *db.DB) func() dashboard.Message {
	return func() dashboard.Message {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var data dashboard.StatsData
		n, err := store.CountEntries(ctx, db.EntryFilter{})
		if err != nil {
			logging.L().Warn("failed to count entries", zap.Error(err))
		}
		data.Entries = n
		if last, err := store.GetSetting(ctx, schema.SettingLastSyncAt); err == nil {
			if t, err := time.Parse(time.RFC3339, last); err == nil {
				data.LastSyncAt = &t
			}
		}
		msg, err := dashboard.NewMessage(dashboard.MessageTypeStats, data)
		if err != nil {
			logging.L().Warn("failed to encode stats", zap.Error(err))
		}
		return msg
	}
}
