package schema

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// File suffixes a qualifying folder is probed for. A folder named X is
// expected to hold X + suffix; no other spelling is accepted.
const (
	ThumbSuffix = ".jpeg"
	ModelSuffix = ".gltf"
	LinkSuffix  = ".url"
)

// ThumbDir is the directory below the media root holding cached thumbnails.
const ThumbDir = "thumbs"

// Entry is the catalog record of one asset folder.
type Entry struct {
	// ===== Identification =====
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"` // folder base name, unique

	// ===== Sync-owned =====
	Path       string     `json:"path" yaml:"path"`                                   // absolute folder path
	ThumbRef   *string    `json:"thumb_ref,omitempty" yaml:"thumb_ref,omitempty"`     // thumbs/<slug>.jpeg
	ModelPath  *string    `json:"model_path,omitempty" yaml:"model_path,omitempty"`   // absolute X.gltf path
	LinkURL    *string    `json:"link_url,omitempty" yaml:"link_url,omitempty"`       // from X.url
	ObtainedOn *time.Time `json:"obtained_on,omitempty" yaml:"obtained_on,omitempty"` // X.gltf mtime

	// ===== User-owned classification =====
	TypeID     *int64   `json:"type_id,omitempty" yaml:"type_id,omitempty"`
	CategoryID *int64   `json:"category_id,omitempty" yaml:"category_id,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Validate checks the fields the store relies on.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsRune(e.Name, '/') || strings.ContainsRune(e.Name, filepath.Separator) || e.Name == "." || e.Name == ".." {
		return fmt.Errorf("name must be a single path element (got %q)", e.Name)
	}
	if e.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(e.Path) {
		return fmt.Errorf("path must be absolute (got %q)", e.Path)
	}
	if e.ThumbRef != nil && filepath.IsAbs(*e.ThumbRef) {
		return fmt.Errorf("thumb_ref must be relative to the media root (got %q)", *e.ThumbRef)
	}
	return nil
}

// HasModel reports whether the entry points at a model file.
func (e *Entry) HasModel() bool {
	return e.ModelPath != nil && *e.ModelPath != ""
}

// ModelRelPath returns the model path relative to the entry folder using
// forward slashes, or "" when there is no model inside the folder.
func (e *Entry) ModelRelPath() string {
	if !e.HasModel() {
		return ""
	}
	rel, err := filepath.Rel(e.Path, *e.ModelPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

// ThumbFile returns the absolute location of the cached thumbnail below
// mediaRoot, or "" when the entry has none.
func (e *Entry) ThumbFile(mediaRoot string) string {
	if e.ThumbRef == nil || *e.ThumbRef == "" {
		return ""
	}
	return filepath.Join(mediaRoot, filepath.FromSlash(*e.ThumbRef))
}

// ThumbRefFor returns the cache-relative thumbnail reference for a slug.
// References always use forward slashes regardless of platform.
func ThumbRefFor(slug string) string {
	return ThumbDir + "/" + slug + ThumbSuffix
}

// FolderFiles holds the conventional file locations of a folder.
type FolderFiles struct {
	Thumb string
	Model string
	Link  string
}

// FilesFor returns the conventional paths for the folder dir named name.
func FilesFor(dir, name string) FolderFiles {
	return FolderFiles{
		Thumb: filepath.Join(dir, name+ThumbSuffix),
		Model: filepath.Join(dir, name+ModelSuffix),
		Link:  filepath.Join(dir, name+LinkSuffix),
	}
}

// Field names a sync-owned column of the entries table.
type Field string

const (
	FieldPath       Field = "path"
	FieldThumbRef   Field = "thumb_ref"
	FieldModelPath  Field = "model_path"
	FieldLinkURL    Field = "link_url"
	FieldObtainedOn Field = "obtained_on"
	FieldTypeID     Field = "type_id"
)

// SyncFields lists every field an update may touch, in column order.
var SyncFields = []Field{
	FieldPath,
	FieldThumbRef,
	FieldModelPath,
	FieldLinkURL,
	FieldObtainedOn,
	FieldTypeID,
}

// Valid reports whether f is one of SyncFields.
func (f Field) Valid() bool {
	for _, s := range SyncFields {
		if s == f {
			return true
		}
	}
	return false
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}

// Time returns a pointer to t normalized to UTC.
func Time(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// EqualString compares two optional strings by value.
func EqualString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EqualInt64 compares two optional integers by value.
func EqualInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EqualTime compares two optional instants.
func EqualTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
