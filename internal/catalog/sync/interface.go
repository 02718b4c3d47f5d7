package sync

import (
	"context"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// Store is the slice of the catalog the reconciler reads and writes.
//
// *db.DB implements Store.
type Store interface {
	// ListEntries returns every catalog entry. The reconciler takes this
	// snapshot once per run and diffs the filesystem against it.
	ListEntries(ctx context.Context) ([]*schema.Entry, error)

	// CreateEntry inserts e and returns its new ID.
	CreateEntry(ctx context.Context, e *schema.Entry) (int64, error)

	// UpdateEntry writes only the named fields of e to the row with e.ID.
	UpdateEntry(ctx context.Context, e *schema.Entry, fields []schema.Field) error

	// DeleteEntry removes the row with the given ID.
	// Returns nil if the row does not exist.
	DeleteEntry(ctx context.Context, id int64) error
}

// Materializer places a copy of a source file at a cache location.
//
// Implementations must leave dst with the same mtime as src, otherwise
// NeedsRefresh reports the copy as stale on every run.
type Materializer interface {
	Materialize(src, dst string) error
}
