package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
	"github.com/modelshelf/modelshelf/internal/metrics"
)

// ErrAlreadyRan is returned by RunOnce after the first call.
var ErrAlreadyRan = errors.New("startup sync already ran")

// syncKey is shared by every entry point so runs never overlap.
const syncKey = "sync"

// Syncer performs one reconciliation pass. *catsync.Reconciler satisfies it.
type Syncer interface {
	Sync(ctx context.Context, rootDir string) (*catsync.Result, error)
}

// Store is the part of the catalog the trigger needs. *db.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	InitSchemaContext(ctx context.Context) error
	GetOrCreateSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	CountEntries(ctx context.Context, f db.EntryFilter) (int, error)
}

// Notifier is told about run boundaries. *dashboard.Handler satisfies it.
type Notifier interface {
	OnSyncStarted(root string)
	OnSyncFinished(ctx context.Context, res *catsync.Result, err error)
}

// Config holds configuration for the trigger.
type Config struct {
	// DefaultRootDir seeds the ROOT_DIR setting when it is unset
	DefaultRootDir string

	// Notifier receives run events (optional)
	Notifier Notifier

	// Logger for trigger activity (default: no-op)
	Logger *zap.Logger
}

// Trigger serializes sync runs and records their outcome.
type Trigger struct {
	store    Store
	syncer   Syncer
	defRoot  string
	notifier Notifier
	logger   *zap.Logger

	ran   atomic.Bool
	group singleflight.Group
}

// NewTrigger creates a trigger running syncer against store.
func NewTrigger(store Store, syncer Syncer, cfg Config) (*Trigger, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Trigger{
		store:    store,
		syncer:   syncer,
		defRoot:  cfg.DefaultRootDir,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}, nil
}

// RunOnce verifies the store and runs the startup sync. Only the first call
// in a process does anything; later calls return ErrAlreadyRan.
func (t *Trigger) RunOnce(ctx context.Context) (*catsync.Result, error) {
	if !t.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRan
	}

	if err := t.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("catalog store unreachable: %w", err)
	}
	if err := t.store.InitSchemaContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}

	return t.RunManually(ctx)
}

// RunManually runs a sync now. If one is already in progress the call
// waits for it and returns its result instead of starting another.
func (t *Trigger) RunManually(ctx context.Context) (*catsync.Result, error) {
	v, err, shared := t.group.Do(syncKey, func() (interface{}, error) {
		return t.run(ctx)
	})
	if shared {
		t.logger.Debug("joined in-flight sync")
	}
	res, _ := v.(*catsync.Result)
	return res, err
}

// RootDir returns the configured root, storing the default on first use.
func (t *Trigger) RootDir(ctx context.Context) (string, error) {
	return t.store.GetOrCreateSetting(ctx, schema.SettingRootDir, t.defRoot)
}

func (t *Trigger) run(ctx context.Context) (*catsync.Result, error) {
	root, err := t.RootDir(ctx)
	if err != nil {
		metrics.RecordSync(nil, err)
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	t.logger.Info("sync started", zap.String("root", root))
	if t.notifier != nil {
		t.notifier.OnSyncStarted(root)
	}

	res, err := t.syncer.Sync(ctx, root)
	metrics.RecordSync(res, err)

	if err != nil {
		t.logger.Error("sync failed", zap.String("root", root), zap.Error(err))
	} else {
		stamp := time.Now().UTC().Format(time.RFC3339)
		if serr := t.store.SetSetting(ctx, schema.SettingLastSyncAt, stamp); serr != nil {
			t.logger.Warn("failed to record last sync time", zap.Error(serr))
		}
	}

	if n, cerr := t.store.CountEntries(ctx, db.EntryFilter{}); cerr == nil {
		metrics.SetCatalogEntries(n)
	}

	if t.notifier != nil {
		t.notifier.OnSyncFinished(ctx, res, err)
	}
	return res, err
}
