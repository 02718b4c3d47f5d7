package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelshelf/modelshelf/internal/catalog/dashboard"
	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
	"github.com/modelshelf/modelshelf/internal/inspect"
)

// stubSyncer returns a canned result, optionally after a delay.
type stubSyncer struct {
	calls atomic.Int32
	delay time.Duration
	res   *catsync.Result
	err   error
}

func (s *stubSyncer) RunManually(ctx context.Context) (*catsync.Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.res, s.err
}

type testEnv struct {
	server *Server
	store  *db.DB
	syncer *stubSyncer
	media  string
	root   string
	opened []string
	chair  int64
}

// setupServer builds a server over a catalog holding Chair (with a model,
// a texture and a cached thumbnail) plus the given number of extra entries.
func setupServer(t *testing.T, extra int) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		store:  store,
		syncer: &stubSyncer{res: &catsync.Result{Created: []string{"Chair"}}},
		media:  t.TempDir(),
		root:   t.TempDir(),
	}

	folder := filepath.Join(env.root, "Chair")
	mustWrite(t, filepath.Join(folder, "Chair.gltf"),
		`{"meshes":[{"primitives":[{"attributes":{"POSITION":0}}]}],"accessors":[{"count":6}]}`)
	mustWrite(t, filepath.Join(folder, "textures", "Chair_normal.png"), "not really a png")
	mustWrite(t, filepath.Join(env.root, "outside.txt"), "secret")
	mustWrite(t, filepath.Join(env.media, "thumbs", "Chair.jpeg"), "jpeg")

	gltf, err := store.EnsureModelType(ctx, "gltf", "glTF 2.0")
	if err != nil {
		t.Fatal(err)
	}
	env.chair, err = store.CreateEntry(ctx, &schema.Entry{
		Name:      "Chair",
		Path:      folder,
		ThumbRef:  schema.String("thumbs/Chair.jpeg"),
		ModelPath: schema.String(filepath.Join(folder, "Chair.gltf")),
		LinkURL:   schema.String("https://example.com/chair"),
		TypeID:    schema.Int64(gltf.ID),
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < extra; i++ {
		name := fmt.Sprintf("Model %02d", i)
		if _, err := store.CreateEntry(ctx, &schema.Entry{Name: name, Path: filepath.Join(env.root, name)}); err != nil {
			t.Fatal(err)
		}
	}

	in, err := inspect.New(inspect.Config{})
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(ctx, store, env.syncer, in, dashboard.NewHub(nil), Config{
		MediaRoot:      env.media,
		DefaultRootDir: env.root,
		PageSize:       20,
		SyncWait:       time.Second,
		Version:        "1.2.3",
		Opener: func(path string) error {
			env.opened = append(env.opened, path)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	env.server = srv
	return env
}

func (env *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := env.server.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", req.Method, req.URL, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, string(body)
}

func (env *testEnv) get(t *testing.T, target string) (*http.Response, string) {
	t.Helper()
	return env.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (env *testEnv) postForm(t *testing.T, target string, form url.Values) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.do(t, req)
}

func TestIndex(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	for _, want := range []string{"Chair", "/media/thumbs/Chair.jpeg", "glTF 2.0", "modelshelf 1.2.3", "<html"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestIndex_Pagination(t *testing.T) {
	env := setupServer(t, 24) // 25 entries

	_, body := env.get(t, "/?page=2")
	if !strings.Contains(body, "Page 2 of 2") {
		t.Errorf("expected page 2 of 2")
	}
	if strings.Count(body, `class="card"`) != 5 {
		t.Errorf("page 2 shows %d cards, want 5", strings.Count(body, `class="card"`))
	}

	_, body = env.get(t, "/?page=99")
	if !strings.Contains(body, "Page 2 of 2") {
		t.Errorf("out-of-range page should clamp to the last page")
	}
	_, body = env.get(t, "/?page=abc")
	if !strings.Contains(body, "Page 1 of 2") || strings.Count(body, `class="card"`) != 20 {
		t.Errorf("malformed page should show page 1 with 20 cards")
	}
}

func TestIndex_SearchAndXHR(t *testing.T) {
	env := setupServer(t, 3)

	req := httptest.NewRequest(http.MethodGet, "/?q=chA", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	resp, body := env.do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.Contains(body, "<html") {
		t.Error("XHR response should be the entries fragment only")
	}
	if !strings.Contains(body, "Chair") || strings.Contains(body, "Model 00") {
		t.Errorf("search results wrong:\n%s", body)
	}
}

func TestIndex_Since(t *testing.T) {
	env := setupServer(t, 0)

	_, body := env.get(t, "/?since=2000-01-01")
	if strings.Contains(body, `class="card"`) {
		t.Error("Chair has no obtained date and should be filtered out")
	}

	_, body = env.get(t, "/?since=zzz")
	if !strings.Contains(body, "could not") {
		t.Error("unparseable since should produce a notice")
	}
}

func TestIndexByType(t *testing.T) {
	env := setupServer(t, 2)

	resp, body := env.get(t, "/type/gltf")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.Count(body, `class="card"`) != 1 {
		t.Errorf("type filter shows %d cards, want 1", strings.Count(body, `class="card"`))
	}

	if resp, _ := env.get(t, "/type/unknown"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown type status = %d, want 404", resp.StatusCode)
	}
	if resp, _ := env.get(t, "/category/999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown category status = %d, want 404", resp.StatusCode)
	}
}

func TestDetail(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.get(t, fmt.Sprintf("/entry/%d", env.chair))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		"https://example.com/chair",
		"Chair_normal.png",
		"<td>normal</td>",
		fmt.Sprintf("/serve-file/%d/textures/Chair_normal.png", env.chair),
		fmt.Sprintf("/serve-file/%d/Chair.gltf", env.chair),
		"Triangles",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("detail page missing %q", want)
		}
	}

	if resp, _ := env.get(t, "/entry/999"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want 404", resp.StatusCode)
	}
}

func TestServeFile(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.get(t, fmt.Sprintf("/serve-file/%d/Chair.gltf", env.chair))
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "meshes") {
		t.Errorf("serve-file status = %d body = %q", resp.StatusCode, body)
	}

	resp, _ = env.get(t, fmt.Sprintf("/serve-file?entry_id=%d&file=%s", env.chair, url.QueryEscape("textures/Chair_normal.png")))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("legacy serve-file status = %d", resp.StatusCode)
	}

	for _, target := range []string{
		fmt.Sprintf("/serve-file/%d/..%%2Foutside.txt", env.chair),
		fmt.Sprintf("/serve-file?entry_id=%d&file=%s", env.chair, url.QueryEscape("../outside.txt")),
		fmt.Sprintf("/serve-file?entry_id=%d&file=%s", env.chair, url.QueryEscape("/etc/passwd")),
		fmt.Sprintf("/serve-file/%d/textures", env.chair),
		"/serve-file?entry_id=abc&file=x",
		"/serve-file",
		"/serve-file/999/Chair.gltf",
	} {
		if resp, _ := env.get(t, target); resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", target, resp.StatusCode)
		}
	}
}

func TestOpen(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.do(t, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/entry/%d/open", env.chair), nil))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("open status = %q", got["status"])
	}
	if len(env.opened) != 1 || env.opened[0] != filepath.Join(env.root, "Chair") {
		t.Errorf("opened = %v", env.opened)
	}

	env.server.config.Opener = func(string) error { return errors.New("no file manager") }
	_, body = env.do(t, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/entry/%d/open", env.chair), nil))
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "error" || got["message"] == "" {
		t.Errorf("failed open response = %v", got)
	}
}

func TestClassify(t *testing.T) {
	env := setupServer(t, 0)
	ctx := context.Background()

	gltf, _ := env.store.GetModelTypeByCode(ctx, "gltf")
	cat, err := env.store.EnsureCategory(ctx, gltf.ID, "Furniture")
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := env.postForm(t, fmt.Sprintf("/entry/%d/classify", env.chair), url.Values{
		"category_id": {fmt.Sprint(cat.ID)},
		"tags":        {"wood, low-poly, ,wood"},
	})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("classify status = %d, want 303", resp.StatusCode)
	}

	e, err := env.store.GetEntry(ctx, env.chair)
	if err != nil {
		t.Fatal(err)
	}
	if e.CategoryID == nil || *e.CategoryID != cat.ID || e.TypeID == nil || *e.TypeID != gltf.ID {
		t.Errorf("classification not stored: %+v", e)
	}
	if strings.Join(e.Tags, ",") != "low-poly,wood" {
		t.Errorf("Tags = %v", e.Tags)
	}

	resp, _ = env.postForm(t, fmt.Sprintf("/entry/%d/classify", env.chair), url.Values{"type_id": {"x"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid type_id status = %d, want 400", resp.StatusCode)
	}
}

func TestZip(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.get(t, fmt.Sprintf("/entry/%d/zip", env.chair))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "Chair.zip") {
		t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
	}
	if !strings.HasPrefix(body, "PK") {
		t.Error("body is not a zip archive")
	}
}

func TestSettings(t *testing.T) {
	env := setupServer(t, 0)

	_, body := env.get(t, "/settings")
	if !strings.Contains(body, env.root) {
		t.Error("settings page should show the default root")
	}

	_, body = env.postForm(t, "/settings", url.Values{"root": {"  /srv/models  "}, "action": {"save"}})
	if !strings.Contains(body, "Root folder path updated.") {
		t.Error("missing update notice")
	}
	root, _ := env.store.GetSetting(context.Background(), schema.SettingRootDir)
	if root != "/srv/models" {
		t.Errorf("ROOT_DIR = %q, want /srv/models", root)
	}
	if env.syncer.calls.Load() != 0 {
		t.Error("plain save must not sync")
	}

	_, body = env.postForm(t, "/settings", url.Values{"root": {""}})
	if !strings.Contains(body, "required") {
		t.Error("empty root should be rejected")
	}
}

func TestSettings_Resync(t *testing.T) {
	env := setupServer(t, 0)

	_, body := env.postForm(t, "/settings", url.Values{"root": {env.root}, "action": {"resync"}})
	if !strings.Contains(body, "Re-synced successfully: 1 added") {
		t.Errorf("missing success notice:\n%s", body)
	}
	if env.syncer.calls.Load() != 1 {
		t.Errorf("syncer called %d times, want 1", env.syncer.calls.Load())
	}

	env.syncer.err = catsync.ErrInvalidRoot
	_, body = env.postForm(t, "/settings", url.Values{"root": {"/missing"}, "action": {"resync"}})
	if !strings.Contains(body, "Re-sync failed") {
		t.Error("missing failure notice")
	}
}

// sequenceSyncer returns its results in order, one per call.
type sequenceSyncer struct {
	calls   atomic.Int32
	results []*catsync.Result
}

func (s *sequenceSyncer) RunManually(ctx context.Context) (*catsync.Result, error) {
	n := int(s.calls.Add(1)) - 1
	return s.results[min(n, len(s.results)-1)], nil
}

func TestSettings_ResyncAfterRunOfPreviousRoot(t *testing.T) {
	env := setupServer(t, 0)
	syncer := &sequenceSyncer{results: []*catsync.Result{
		{Root: "/old/root", Created: []string{"Stale"}, Deleted: []string{"A", "B"}},
		{Root: env.root, Created: []string{"Chair"}},
	}}
	env.server.syncer = syncer

	_, body := env.postForm(t, "/settings", url.Values{"root": {env.root}, "action": {"resync"}})
	if !strings.Contains(body, "Re-synced successfully: 1 added, 0 updated, 0 removed") {
		t.Errorf("notice should report the run of the new root:\n%s", body)
	}
	if n := syncer.calls.Load(); n != 2 {
		t.Errorf("syncer called %d times, want 2", n)
	}
}

func TestSettings_ResyncStillRunning(t *testing.T) {
	env := setupServer(t, 0)
	env.server.config.SyncWait = 20 * time.Millisecond
	env.syncer.delay = 500 * time.Millisecond

	_, body := env.postForm(t, "/settings", url.Values{"root": {env.root}, "action": {"resync"}})
	if !strings.Contains(body, "still running") {
		t.Errorf("missing still-running notice:\n%s", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupServer(t, 0)

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Clients != 0 {
		t.Errorf("health = %+v", health)
	}

	resp, body = env.get(t, "/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "modelshelf_http_requests_total") {
		t.Errorf("metrics status = %d, missing request counter", resp.StatusCode)
	}

	if resp, _ := env.get(t, "/ws"); resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("plain GET /ws status = %d, want 426", resp.StatusCode)
	}
}

func TestMedia(t *testing.T) {
	env := setupServer(t, 0)
	resp, body := env.get(t, "/media/thumbs/Chair.jpeg")
	if resp.StatusCode != http.StatusOK || body != "jpeg" {
		t.Errorf("media status = %d body = %q", resp.StatusCode, body)
	}
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		raw       string
		total     int
		wantNum   int
		wantPages int
	}{
		{"", 0, 1, 1},
		{"1", 20, 1, 1},
		{"2", 21, 2, 2},
		{"5", 21, 2, 2},
		{"-1", 50, 1, 3},
		{"x", 50, 1, 3},
	}
	for _, tt := range tests {
		p := newPage(tt.raw, tt.total, 20)
		if p.Number != tt.wantNum || p.NumPages != tt.wantPages {
			t.Errorf("newPage(%q, %d) = %d/%d, want %d/%d", tt.raw, tt.total, p.Number, p.NumPages, tt.wantNum, tt.wantPages)
		}
	}
	if off := newPage("3", 100, 20).offset(); off != 40 {
		t.Errorf("offset = %d, want 40", off)
	}
}
