// Package export writes the catalog out as JSON Lines or YAML.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// Format is an export encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts "jsonl", "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsonl", "json":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want jsonl or yaml)", s)
	}
}

// Source is the catalog being exported. *db.DB satisfies it.
type Source interface {
	QueryEntries(ctx context.Context, f db.EntryFilter) ([]*schema.Entry, error)
	ListModelTypes(ctx context.Context) ([]*schema.ModelType, error)
	ListCategories(ctx context.Context, typeID int64) ([]*schema.Category, error)
}

// Record is one exported entry with its classification resolved to names.
type Record struct {
	Name       string     `json:"name" yaml:"name"`
	Path       string     `json:"path" yaml:"path"`
	Thumbnail  string     `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Model      string     `json:"model,omitempty" yaml:"model,omitempty"`
	Link       string     `json:"link,omitempty" yaml:"link,omitempty"`
	ObtainedOn *time.Time `json:"obtained_on,omitempty" yaml:"obtained_on,omitempty"`
	Type       string     `json:"type,omitempty" yaml:"type,omitempty"`
	Category   string     `json:"category,omitempty" yaml:"category,omitempty"`
	Tags       []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Write exports the entries matching f to w and returns how many were
// written. Limit and Offset in f are honoured.
func Write(ctx context.Context, w io.Writer, src Source, f db.EntryFilter, format Format) (int, error) {
	records, err := Collect(ctx, src, f)
	if err != nil {
		return 0, err
	}

	switch format {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return 0, fmt.Errorf("failed to encode %s: %w", r.Name, err)
			}
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return 0, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return 0, fmt.Errorf("failed to flush yaml: %w", err)
		}
	default:
		return 0, fmt.Errorf("unknown export format %q", format)
	}
	return len(records), nil
}

// Collect loads the entries matching f as Records, ordered by name.
func Collect(ctx context.Context, src Source, f db.EntryFilter) ([]Record, error) {
	entries, err := src.QueryEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	types, err := src.ListModelTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list model types: %w", err)
	}
	cats, err := src.ListCategories(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	typeByID := lo.KeyBy(types, func(t *schema.ModelType) int64 { return t.ID })
	catByID := lo.KeyBy(cats, func(c *schema.Category) int64 { return c.ID })

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		r := Record{
			Name:       e.Name,
			Path:       e.Path,
			Thumbnail:  lo.FromPtr(e.ThumbRef),
			Model:      lo.FromPtr(e.ModelPath),
			Link:       lo.FromPtr(e.LinkURL),
			ObtainedOn: e.ObtainedOn,
			Tags:       e.Tags,
		}
		if e.TypeID != nil {
			if t, ok := typeByID[*e.TypeID]; ok {
				r.Type = t.Code
			}
		}
		if e.CategoryID != nil {
			if c, ok := catByID[*e.CategoryID]; ok {
				r.Category = c.Name
			}
		}
		records = append(records, r)
	}
	return records, nil
}
