/*
Package sync mirrors a directory of asset folders into the catalog store.

# Folder Convention

The root directory holds one folder per asset. A folder named X qualifies
when it contains X/X.jpeg. Two more files are optional:

	<root>/
	├── Chair/
	│   ├── Chair.jpeg     thumbnail (required)
	│   ├── Chair.gltf     model; its mtime becomes ObtainedOn
	│   └── Chair.url      internet shortcut with a URL= line
	└── Lamp/
	    └── Lamp.jpeg

Thumbnails are copied into <media-root>/thumbs/<slug>.jpeg with the source
mtime preserved, so a later run can tell a stale copy by comparing mtimes.

# Usage

	store, err := db.Open(cfg.DB)
	if err != nil {
	    return err
	}
	if err := store.InitSchema(); err != nil {
	    return err
	}

	rec := sync.New(store, sync.Config{
	    ThumbDir: filepath.Join(cfg.MediaRoot, "thumbs"),
	    Logger:   logger.Named("sync"),
	})
	res, err := rec.Sync(ctx, "/assets")

# Error Handling

The reconciler is resilient to individual folder failures:

  - A folder without its thumbnail is skipped and recorded in Result.Skipped
  - A stat or copy failure, or a folder whose entry would not pass
    schema.Entry.Validate, is logged, recorded in Result.Failed, and the
    folder's existing entry is kept
  - A store write error aborts the run and is reported as ErrStore
  - A root that is not a directory is reported as ErrInvalidRoot before any
    catalog access

# Concurrency

A Reconciler is not safe for concurrent Sync calls against the same store.
Callers serialize runs; the daemon package does so with a singleflight
group.
*/
package sync
