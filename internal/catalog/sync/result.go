package sync

import (
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// Update names an entry that was rewritten and the fields that changed.
type Update struct {
	Name   string         `json:"name"`
	Fields []schema.Field `json:"fields"`
}

// Result summarizes one reconciliation run.
type Result struct {
	Root         string         `json:"root"`
	Created      []string       `json:"created,omitempty"`
	Updated      []Update       `json:"updated,omitempty"`
	Deleted      []string       `json:"deleted,omitempty"`
	Skipped      []string       `json:"skipped,omitempty"`
	Failed       []*FolderError `json:"-"`
	ThumbsCopied int            `json:"thumbs_copied"`
	Duration     time.Duration  `json:"duration"`
}

// Changes returns the number of catalog rows created, updated or deleted.
func (r *Result) Changes() int {
	return len(r.Created) + len(r.Updated) + len(r.Deleted)
}

// UpdatedNames returns the names of updated entries in processing order.
func (r *Result) UpdatedNames() []string {
	return lo.Map(r.Updated, func(u Update, _ int) string { return u.Name })
}

// FailedNames returns the names of folders that could not be processed.
func (r *Result) FailedNames() []string {
	return lo.Map(r.Failed, func(f *FolderError, _ int) string { return f.Name })
}

// Err combines the per-folder failures, or returns nil if there were none.
func (r *Result) Err() error {
	return multierr.Combine(lo.Map(r.Failed, func(f *FolderError, _ int) error { return f })...)
}
