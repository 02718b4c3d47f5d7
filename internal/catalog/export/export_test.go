package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// setupCatalog creates a database with two classified entries.
func setupCatalog(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	gltf, err := store.EnsureModelType(ctx, "gltf", "glTF 2.0")
	if err != nil {
		t.Fatal(err)
	}
	furniture, err := store.EnsureCategory(ctx, gltf.ID, "Furniture")
	if err != nil {
		t.Fatal(err)
	}

	obtained := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	chairID, err := store.CreateEntry(ctx, &schema.Entry{
		Name:       "Chair",
		Path:       "/models/Chair",
		ThumbRef:   schema.String("thumbs/Chair.jpeg"),
		ModelPath:  schema.String("/models/Chair/Chair.gltf"),
		LinkURL:    schema.String("https://example.com/chair"),
		ObtainedOn: &obtained,
		TypeID:     schema.Int64(gltf.ID),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetEntryClassification(ctx, chairID, nil, schema.Int64(furniture.ID)); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEntryTags(ctx, chairID, []string{"wood", "low-poly"}); err != nil {
		t.Fatal(err)
	}

	if _, err := store.CreateEntry(ctx, &schema.Entry{
		Name:     "Apple",
		Path:     "/models/Apple",
		ThumbRef: schema.String("thumbs/Apple.jpeg"),
	}); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSONL, false},
		{"jsonl", FormatJSONL, false},
		{"JSON", FormatJSONL, false},
		{"yaml", FormatYAML, false},
		{" yml ", FormatYAML, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite_JSONL(t *testing.T) {
	store := setupCatalog(t)

	var buf bytes.Buffer
	n, err := Write(context.Background(), &buf, store, db.EntryFilter{}, FormatJSONL)
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Write() = %d records, want 2", n)
	}

	var got []Record
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			t.Fatalf("line is not JSON: %q", scanner.Text())
		}
		got = append(got, r)
	}

	obtained := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := []Record{
		{Name: "Apple", Path: "/models/Apple", Thumbnail: "thumbs/Apple.jpeg"},
		{
			Name:       "Chair",
			Path:       "/models/Chair",
			Thumbnail:  "thumbs/Chair.jpeg",
			Model:      "/models/Chair/Chair.gltf",
			Link:       "https://example.com/chair",
			ObtainedOn: &obtained,
			Type:       "gltf",
			Category:   "Furniture",
			Tags:       []string{"low-poly", "wood"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported records mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_YAMLFiltered(t *testing.T) {
	store := setupCatalog(t)

	var buf bytes.Buffer
	n, err := Write(context.Background(), &buf, store, db.EntryFilter{Tag: "wood"}, FormatYAML)
	if err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Write() = %d records, want 1", n)
	}

	var got []Record
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, buf.String())
	}
	if len(got) != 1 || got[0].Name != "Chair" || got[0].Category != "Furniture" {
		t.Errorf("unexpected YAML export: %+v", got)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	store := setupCatalog(t)
	if _, err := Write(context.Background(), &bytes.Buffer{}, store, db.EntryFilter{}, Format("xml")); err == nil {
		t.Error("Write() with an unknown format should fail")
	}
}
