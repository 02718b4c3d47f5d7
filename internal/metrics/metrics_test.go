package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
)

func TestRecordSync(t *testing.T) {
	beforeOK := testutil.ToFloat64(syncRunsTotal.WithLabelValues("success"))
	beforeErr := testutil.ToFloat64(syncRunsTotal.WithLabelValues("error"))
	beforeCreated := testutil.ToFloat64(syncEntriesTotal.WithLabelValues("created"))
	beforeThumbs := testutil.ToFloat64(syncThumbnailsCopied)

	RecordSync(&catsync.Result{
		Created:      []string{"Chair", "Table"},
		ThumbsCopied: 2,
		Duration:     150 * time.Millisecond,
	}, nil)
	RecordSync(nil, errors.New("boom"))

	if got := testutil.ToFloat64(syncRunsTotal.WithLabelValues("success")) - beforeOK; got != 1 {
		t.Errorf("success runs delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(syncRunsTotal.WithLabelValues("error")) - beforeErr; got != 1 {
		t.Errorf("error runs delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(syncEntriesTotal.WithLabelValues("created")) - beforeCreated; got != 2 {
		t.Errorf("created delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(syncThumbnailsCopied) - beforeThumbs; got != 2 {
		t.Errorf("thumbnails delta = %v, want 2", got)
	}
}

func TestRecordSync_Partial(t *testing.T) {
	before := testutil.ToFloat64(syncRunsTotal.WithLabelValues("partial"))

	RecordSync(&catsync.Result{
		Failed: []*catsync.FolderError{{Name: "Chair", Op: "copy thumbnail", Err: errors.New("disk full")}},
	}, nil)

	if got := testutil.ToFloat64(syncRunsTotal.WithLabelValues("partial")) - before; got != 1 {
		t.Errorf("partial runs delta = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	SetCatalogEntries(42)
	if got := testutil.ToFloat64(catalogEntries); got != 42 {
		t.Errorf("catalog entries = %v, want 42", got)
	}
	SetDashboardClients(3)
	if got := testutil.ToFloat64(dashboardClients); got != 3 {
		t.Errorf("dashboard clients = %v, want 3", got)
	}
}
