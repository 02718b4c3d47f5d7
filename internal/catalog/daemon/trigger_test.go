package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu       sync.Mutex
	settings map[string]string
	pingErr  error
	pings    int
	inits    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[string]string)}
}

func (s *fakeStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	return s.pingErr
}

func (s *fakeStore) InitSchemaContext(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return nil
}

func (s *fakeStore) GetOrCreateSetting(_ context.Context, key, def string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.settings[key]; ok {
		return v, nil
	}
	s.settings[key] = def
	return def, nil
}

func (s *fakeStore) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *fakeStore) CountEntries(context.Context, db.EntryFilter) (int, error) {
	return 0, nil
}

func (s *fakeStore) setting(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok
}

// fakeSyncer records the roots it was asked to sync.
type fakeSyncer struct {
	mu    sync.Mutex
	roots []string
	err   error
	calls atomic.Int32

	started chan struct{}
	release chan struct{}
}

func (s *fakeSyncer) Sync(_ context.Context, root string) (*catsync.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.roots = append(s.roots, root)
	s.mu.Unlock()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return &catsync.Result{Root: root, Created: []string{"Chair"}}, s.err
}

// notifyRecorder records notifier callbacks.
type notifyRecorder struct {
	mu       sync.Mutex
	started  []string
	finished []error
}

func (n *notifyRecorder) OnSyncStarted(root string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, root)
}

func (n *notifyRecorder) OnSyncFinished(_ context.Context, _ *catsync.Result, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, err)
}

func TestNewTrigger(t *testing.T) {
	tests := []struct {
		name    string
		store   Store
		syncer  Syncer
		wantErr bool
	}{
		{"valid", newFakeStore(), &fakeSyncer{}, false},
		{"nil store", nil, &fakeSyncer{}, true},
		{"nil syncer", newFakeStore(), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrigger(tt.store, tt.syncer, Config{})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTrigger() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunOnce(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{}
	notes := &notifyRecorder{}

	trig, err := NewTrigger(store, syncer, Config{DefaultRootDir: "/models", Notifier: notes})
	if err != nil {
		t.Fatal(err)
	}

	res, err := trig.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if res == nil || res.Root != "/models" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.pings != 1 || store.inits != 1 {
		t.Errorf("expected one ping and one schema init, got %d and %d", store.pings, store.inits)
	}

	if root, _ := store.setting(schema.SettingRootDir); root != "/models" {
		t.Errorf("ROOT_DIR = %q, want /models", root)
	}
	stamp, ok := store.setting(schema.SettingLastSyncAt)
	if !ok {
		t.Fatal("LAST_SYNC_AT not written")
	}
	if _, err := time.Parse(time.RFC3339, stamp); err != nil {
		t.Errorf("LAST_SYNC_AT %q is not RFC3339: %v", stamp, err)
	}

	if len(notes.started) != 1 || len(notes.finished) != 1 || notes.finished[0] != nil {
		t.Errorf("unexpected notifications: %+v", notes)
	}

	// Second call is a no-op.
	if _, err := trig.RunOnce(context.Background()); !errors.Is(err, ErrAlreadyRan) {
		t.Errorf("second RunOnce() error = %v, want ErrAlreadyRan", err)
	}
	if got := syncer.calls.Load(); got != 1 {
		t.Errorf("syncer called %d times, want 1", got)
	}
}

func TestRunOnce_StoreUnreachable(t *testing.T) {
	store := newFakeStore()
	store.pingErr = errors.New("disk I/O error")
	syncer := &fakeSyncer{}

	trig, _ := NewTrigger(store, syncer, Config{DefaultRootDir: "/models"})
	if _, err := trig.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() should fail when the store is unreachable")
	}
	if syncer.calls.Load() != 0 {
		t.Error("sync must not run when the store is unreachable")
	}
}

func TestRunOnce_UsesStoredRoot(t *testing.T) {
	store := newFakeStore()
	store.settings[schema.SettingRootDir] = "/configured"
	syncer := &fakeSyncer{}

	trig, _ := NewTrigger(store, syncer, Config{DefaultRootDir: "/default"})
	if _, err := trig.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(syncer.roots) != 1 || syncer.roots[0] != "/configured" {
		t.Errorf("synced roots = %v, want [/configured]", syncer.roots)
	}
}

func TestRunManually_Failure(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{err: catsync.ErrInvalidRoot}
	notes := &notifyRecorder{}

	trig, _ := NewTrigger(store, syncer, Config{DefaultRootDir: "/missing", Notifier: notes})
	_, err := trig.RunManually(context.Background())
	if !errors.Is(err, catsync.ErrInvalidRoot) {
		t.Fatalf("RunManually() error = %v, want ErrInvalidRoot", err)
	}
	if _, ok := store.setting(schema.SettingLastSyncAt); ok {
		t.Error("LAST_SYNC_AT must not be written after a failed sync")
	}
	if len(notes.finished) != 1 || notes.finished[0] == nil {
		t.Errorf("expected failure notification, got %+v", notes.finished)
	}

	// A failed run can be retried.
	syncer.err = nil
	if _, err := trig.RunManually(context.Background()); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

func TestRunManually_Coalesces(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSyncer{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	trig, _ := NewTrigger(store, syncer, Config{DefaultRootDir: "/models"})

	const callers = 5
	results := make([]*catsync.Result, callers)
	var wg sync.WaitGroup

	run := func(i int) {
		defer wg.Done()
		res, err := trig.RunManually(context.Background())
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
		results[i] = res
	}

	wg.Add(1)
	go run(0)
	<-syncer.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(syncer.release)
	wg.Wait()

	if got := syncer.calls.Load(); got != 1 {
		t.Fatalf("syncer called %d times, want 1", got)
	}
	for i, res := range results {
		if res != results[0] {
			t.Errorf("caller %d got a different result", i)
		}
	}
}

func TestRunOnce_RealStore(t *testing.T) {
	root := t.TempDir()
	folder := filepath.Join(root, "Chair")
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "Chair.jpeg"), []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec := catsync.New(store, catsync.Config{ThumbDir: filepath.Join(t.TempDir(), "thumbs")})
	trig, err := NewTrigger(store, rec, Config{DefaultRootDir: root})
	if err != nil {
		t.Fatal(err)
	}

	res, err := trig.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() failed: %v", err)
	}
	if len(res.Created) != 1 || res.Created[0] != "Chair" {
		t.Errorf("Created = %v, want [Chair]", res.Created)
	}

	if _, err := store.GetSetting(context.Background(), schema.SettingLastSyncAt); err != nil {
		t.Errorf("LAST_SYNC_AT not stored: %v", err)
	}
	if _, err := store.GetEntryByName(context.Background(), "Chair"); err != nil {
		t.Errorf("entry not created: %v", err)
	}
}
