package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// Target is the catalog an export is imported into. *db.DB satisfies it.
type Target interface {
	GetEntryByName(ctx context.Context, name string) (*schema.Entry, error)
	EnsureModelType(ctx context.Context, code, name string) (*schema.ModelType, error)
	EnsureCategory(ctx context.Context, typeID int64, name string) (*schema.Category, error)
	SetEntryClassification(ctx context.Context, entryID int64, typeID, categoryID *int64) error
	SetEntryTags(ctx context.Context, entryID int64, names []string) error
}

// ImportResult summarizes an import.
type ImportResult struct {
	Applied int      // entries whose classification was restored
	Missing []string // records naming no catalog entry
	Failed  []error  // per-record failures
}

// Err combines the per-record failures, or returns nil if there were none.
func (r *ImportResult) Err() error {
	return multierr.Combine(r.Failed...)
}

// Read decodes the records of an export.
func Read(r io.Reader, format Format) ([]Record, error) {
	switch format {
	case FormatJSONL:
		var records []Record
		dec := json.NewDecoder(r)
		for line := 1; ; line++ {
			var rec Record
			if err := dec.Decode(&rec); err != nil {
				if errors.Is(err, io.EOF) {
					return records, nil
				}
				return nil, fmt.Errorf("invalid JSON in record %d: %w", line, err)
			}
			records = append(records, rec)
		}
	case FormatYAML:
		var records []Record
		if err := yaml.NewDecoder(r).Decode(&records); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Import restores the user-owned classification (type, category and tags)
// of each record onto the catalog entry with the same name. Sync-owned
// fields in the records are ignored. Records for folders that are no longer
// cataloged are reported in Missing. Unknown types and categories are
// created.
func Import(ctx context.Context, r io.Reader, dst Target, format Format) (*ImportResult, error) {
	records, err := Read(r, format)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		e, err := dst.GetEntryByName(ctx, rec.Name)
		if db.IsNotFound(err) {
			res.Missing = append(res.Missing, rec.Name)
			continue
		}
		if err != nil {
			return res, err
		}

		if err := restore(ctx, dst, e.ID, rec); err != nil {
			res.Failed = append(res.Failed, fmt.Errorf("%s: %w", rec.Name, err))
			continue
		}
		res.Applied++
	}
	return res, nil
}

func restore(ctx context.Context, dst Target, entryID int64, rec Record) error {
	var typeID, categoryID *int64
	if rec.Type != "" {
		// A type created here is named after its code until renamed.
		t, err := dst.EnsureModelType(ctx, rec.Type, rec.Type)
		if err != nil {
			return err
		}
		typeID = schema.Int64(t.ID)
	}
	if rec.Category != "" {
		if typeID == nil {
			return fmt.Errorf("category %q has no type", rec.Category)
		}
		c, err := dst.EnsureCategory(ctx, *typeID, rec.Category)
		if err != nil {
			return err
		}
		categoryID = schema.Int64(c.ID)
	}

	if err := dst.SetEntryClassification(ctx, entryID, typeID, categoryID); err != nil {
		return err
	}
	return dst.SetEntryTags(ctx, entryID, rec.Tags)
}
