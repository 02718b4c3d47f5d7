// Package daemon decides when the catalog is reconciled with the model root.
//
// The Trigger owns every entry point into a sync:
//  1. RunOnce at process startup (checks the store, then syncs once)
//  2. RunManually from the web UI or CLI
//  3. the optional Watcher, which turns filesystem events under the root
//     into debounced RunManually calls
//
// All entry points share one singleflight key, so two syncs never run at
// the same time; callers that arrive while a run is in progress receive
// that run's result.
//
// Usage:
//
//	trig, err := daemon.NewTrigger(store, reconciler, daemon.Config{
//	    DefaultRootDir: cfg.DefaultRootDir,
//	    Notifier:       dashboard.NewHandler(hub, store, logger),
//	    Logger:         logger,
//	})
//	if _, err := trig.RunOnce(ctx); err != nil {
//	    logger.Error("initial sync failed", zap.Error(err))
//	}
//
//	w, err := daemon.NewWatcher(trig, daemon.WatcherConfig{Debounce: time.Second})
//	go w.Start(ctx)
package daemon
