package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// Config configures a Reconciler.
type Config struct {
	// ThumbDir is the absolute thumbnail cache directory, normally
	// <media-root>/thumbs. It is created on demand.
	ThumbDir string

	// DefaultTypeID is assigned to new entries and to existing entries
	// without a type. Zero disables the assignment.
	DefaultTypeID int64

	// Materializer copies thumbnails into ThumbDir.
	// If nil, CopyMaterializer is used.
	Materializer Materializer

	// Logger receives one line per catalog change.
	// If nil, logging is disabled.
	Logger *zap.Logger
}

// Reconciler brings the catalog in line with the folders under a root.
type Reconciler struct {
	store         Store
	thumbDir      string
	defaultTypeID int64
	copier        Materializer
	logger        *zap.Logger
}

// New creates a Reconciler writing to store.
//
// The store must have its schema created before the first Sync.
func New(store Store, cfg Config) *Reconciler {
	if cfg.Materializer == nil {
		cfg.Materializer = CopyMaterializer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reconciler{
		store:         store,
		thumbDir:      cfg.ThumbDir,
		defaultTypeID: cfg.DefaultTypeID,
		copier:        cfg.Materializer,
		logger:        cfg.Logger,
	}
}

// folderScan is what one qualifying folder looks like on disk.
type folderScan struct {
	slug       string
	files      schema.FolderFiles
	thumbCache string
	entry      *schema.Entry
}

// Sync walks the immediate subfolders of rootDir and creates, updates and
// deletes catalog entries so that the catalog matches them.
//
// The returned Result is never nil, even on error. Per-folder filesystem
// failures do not fail the run; inspect Result.Err for them.
//
// Running Sync twice without filesystem changes performs no writes the
// second time.
func (r *Reconciler) Sync(ctx context.Context, rootDir string) (*Result, error) {
	start := time.Now()
	res := &Result{Root: rootDir}
	defer func() { res.Duration = time.Since(start) }()

	root, err := checkRoot(rootDir)
	if err != nil {
		r.logger.Warn("root directory unusable, nothing synced",
			zap.String("root", rootDir), zap.Error(err))
		return res, err
	}
	res.Root = root

	if err := os.MkdirAll(r.thumbDir, 0o755); err != nil {
		return res, fmt.Errorf("failed to create thumbnail cache %s: %w", r.thumbDir, err)
	}

	snapshot, err := r.store.ListEntries(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: failed to list entries: %w", ErrStore, err)
	}
	existing := lo.KeyBy(snapshot, func(e *schema.Entry) string { return e.Name })

	folders, err := listFolders(root)
	if err != nil {
		return res, fmt.Errorf("failed to read root directory: %w", err)
	}

	seen := make(map[string]struct{}, len(folders))
	slugOwners := make(map[string]string, len(folders))

	for _, name := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		scan, err := r.scanFolder(root, name)
		if err != nil {
			seen[name] = struct{}{}
			r.recordFailure(res, err)
			continue
		}
		if scan == nil {
			res.Skipped = append(res.Skipped, name)
			r.logger.Debug("skipping folder without thumbnail", zap.String("folder", name))
			continue
		}
		seen[name] = struct{}{}

		slug := scan.slug
		if owner, dup := slugOwners[slug]; dup {
			r.logger.Warn("folders share a thumbnail slug; the later one overwrites the cached image",
				zap.String("slug", slug), zap.String("first", owner), zap.String("second", name))
		} else {
			slugOwners[slug] = name
		}

		if NeedsRefresh(scan.thumbCache, scan.files.Thumb) {
			if err := r.copier.Materialize(scan.files.Thumb, scan.thumbCache); err != nil {
				r.recordFailure(res, &FolderError{Name: name, Op: "copy thumbnail", Err: err})
				continue
			}
			res.ThumbsCopied++
		}

		if err := r.apply(ctx, res, existing[name], scan.entry); err != nil {
			return res, err
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	orphans := lo.Filter(snapshot, func(e *schema.Entry, _ int) bool {
		_, ok := seen[e.Name]
		return !ok
	})
	slices.SortFunc(orphans, func(a, b *schema.Entry) int { return strings.Compare(a.Name, b.Name) })

	for _, e := range orphans {
		if err := r.store.DeleteEntry(ctx, e.ID); err != nil {
			return res, fmt.Errorf("%w: failed to delete entry %q: %w", ErrStore, e.Name, err)
		}
		res.Deleted = append(res.Deleted, e.Name)
		r.logger.Info("removed entry", zap.String("name", e.Name), zap.String("path", e.Path))
	}

	r.logger.Info("sync complete",
		zap.String("root", root),
		zap.Int("created", len(res.Created)),
		zap.Int("updated", len(res.Updated)),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)),
		zap.Int("thumbs_copied", res.ThumbsCopied),
		zap.Duration("took", time.Since(start)))

	return res, nil
}

func (r *Reconciler) recordFailure(res *Result, err error) {
	var fe *FolderError
	if !errors.As(err, &fe) {
		fe = &FolderError{Op: "scan", Err: err}
	}
	res.Failed = append(res.Failed, fe)
	r.logger.Warn("folder not synced, keeping existing entry",
		zap.String("folder", fe.Name), zap.String("op", fe.Op), zap.Error(fe.Err))
}

// scanFolder probes root/name. It returns (nil, nil) when the folder does
// not hold its thumbnail and therefore does not qualify.
func (r *Reconciler) scanFolder(root, name string) (*folderScan, error) {
	dir := filepath.Join(root, name)
	files := schema.FilesFor(dir, name)

	// The thumbnail decides whether the folder qualifies at all.
	thumb, err := os.Stat(files.Thumb)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &FolderError{Name: name, Op: "stat thumbnail", Err: err}
	}
	if thumb.IsDir() {
		return nil, nil
	}

	slug := Slugify(name)
	entry := &schema.Entry{
		Name:     name,
		Path:     dir,
		ThumbRef: schema.String(schema.ThumbRefFor(slug)),
	}

	model, err := os.Stat(files.Model)
	switch {
	case err == nil && !model.IsDir():
		entry.ModelPath = schema.String(files.Model)
		entry.ObtainedOn = schema.Time(model.ModTime())
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return nil, &FolderError{Name: name, Op: "stat model", Err: err}
	}

	if url, ok := ParseLink(files.Link); ok {
		entry.LinkURL = schema.String(url)
	}

	if err := entry.Validate(); err != nil {
		return nil, &FolderError{Name: name, Op: "validate", Err: err}
	}

	return &folderScan{
		slug:       slug,
		files:      files,
		thumbCache: filepath.Join(r.thumbDir, slug+schema.ThumbSuffix),
		entry:      entry,
	}, nil
}

// apply creates fresh or writes its differences onto stored.
func (r *Reconciler) apply(ctx context.Context, res *Result, stored, fresh *schema.Entry) error {
	if stored == nil {
		if r.defaultTypeID > 0 {
			fresh.TypeID = schema.Int64(r.defaultTypeID)
		}
		id, err := r.store.CreateEntry(ctx, fresh)
		if err != nil {
			return fmt.Errorf("%w: failed to create entry %q: %w", ErrStore, fresh.Name, err)
		}
		fresh.ID = id
		res.Created = append(res.Created, fresh.Name)
		r.logger.Info("added entry",
			zap.String("name", fresh.Name),
			zap.Int64("id", id),
			zap.Bool("model", fresh.HasModel()),
			zap.Bool("link", fresh.LinkURL != nil))
		return nil
	}

	updated, fields := r.merge(stored, fresh)
	if len(fields) == 0 {
		return nil
	}
	if err := r.store.UpdateEntry(ctx, updated, fields); err != nil {
		return fmt.Errorf("%w: failed to update entry %q: %w", ErrStore, stored.Name, err)
	}
	res.Updated = append(res.Updated, Update{Name: stored.Name, Fields: fields})
	r.logger.Info("updated entry",
		zap.String("name", stored.Name),
		zap.Strings("fields", lo.Map(fields, func(f schema.Field, _ int) string { return string(f) })))
	return nil
}

// merge returns stored with the sync-owned values of fresh applied, and the
// list of fields that actually changed.
func (r *Reconciler) merge(stored, fresh *schema.Entry) (*schema.Entry, []schema.Field) {
	out := *stored
	var fields []schema.Field

	if stored.Path != fresh.Path {
		out.Path = fresh.Path
		fields = append(fields, schema.FieldPath)
	}
	if !schema.EqualString(stored.ThumbRef, fresh.ThumbRef) {
		out.ThumbRef = fresh.ThumbRef
		fields = append(fields, schema.FieldThumbRef)
	}
	if !schema.EqualString(stored.ModelPath, fresh.ModelPath) {
		out.ModelPath = fresh.ModelPath
		fields = append(fields, schema.FieldModelPath)
	}
	if !schema.EqualString(stored.LinkURL, fresh.LinkURL) {
		out.LinkURL = fresh.LinkURL
		fields = append(fields, schema.FieldLinkURL)
	}
	// A vanished model keeps the last known acquisition date.
	if fresh.ObtainedOn != nil && !schema.EqualTime(stored.ObtainedOn, fresh.ObtainedOn) {
		out.ObtainedOn = fresh.ObtainedOn
		fields = append(fields, schema.FieldObtainedOn)
	}
	if stored.TypeID == nil && r.defaultTypeID > 0 {
		out.TypeID = schema.Int64(r.defaultTypeID)
		fields = append(fields, schema.FieldTypeID)
	}
	return &out, fields
}

func checkRoot(rootDir string) (string, error) {
	if strings.TrimSpace(rootDir) == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidRoot)
	}
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidRoot, rootDir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return root, nil
}

// listFolders returns the names of the immediate subdirectories of root in
// lexical order. Symlinks pointing at directories are included.
func listFolders(root string) ([]string, error) {
	dirents, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, de := range dirents {
		switch {
		case de.IsDir():
			names = append(names, de.Name())
		case de.Type()&fs.ModeSymlink != 0:
			if info, err := os.Stat(filepath.Join(root, de.Name())); err == nil && info.IsDir() {
				names = append(names, de.Name())
			}
		}
	}
	return names, nil
}
