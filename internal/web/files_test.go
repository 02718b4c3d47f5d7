package web

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveInside(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "Chair")
	mustWrite(t, filepath.Join(base, "Chair.gltf"), "{}")
	mustWrite(t, filepath.Join(base, "textures", "wood normal.png"), "png")
	mustWrite(t, filepath.Join(root, "secret.txt"), "secret")
	if err := os.Symlink(filepath.Join(root, "secret.txt"), filepath.Join(base, "escape.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(base, "Chair.gltf"), filepath.Join(base, "alias.gltf")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "file", rel: "Chair.gltf", want: "Chair.gltf"},
		{name: "nested with space", rel: "textures/wood normal.png", want: "textures/wood normal.png"},
		{name: "redundant segments", rel: "textures/../Chair.gltf", want: "Chair.gltf"},
		{name: "symlink inside", rel: "alias.gltf", want: "Chair.gltf"},
		{name: "parent", rel: "../secret.txt", wantErr: true},
		{name: "deep parent", rel: "textures/../../secret.txt", wantErr: true},
		{name: "dotdot", rel: "..", wantErr: true},
		{name: "absolute", rel: "/etc/passwd", wantErr: true},
		{name: "symlink escaping", rel: "escape.txt", wantErr: true},
		{name: "directory", rel: "textures", wantErr: true},
		{name: "folder itself", rel: ".", wantErr: true},
		{name: "missing", rel: "nope.bin", wantErr: true},
		{name: "empty", rel: "", wantErr: true},
	}

	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		t.Fatal(err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveInside(base, tt.rel)
			if tt.wantErr {
				if !errors.Is(err, ErrOutsideFolder) {
					t.Fatalf("resolveInside(%q) error = %v, want ErrOutsideFolder", tt.rel, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveInside(%q) failed: %v", tt.rel, err)
			}
			if want := filepath.Join(realBase, filepath.FromSlash(tt.want)); got != want {
				t.Errorf("resolveInside(%q) = %q, want %q", tt.rel, got, want)
			}
		})
	}
}

func TestWriteZip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Chair")
	mustWrite(t, filepath.Join(dir, "Chair.gltf"), `{"asset":{"version":"2.0"}}`)
	mustWrite(t, filepath.Join(dir, "Chair.jpeg"), "jpeg")
	mustWrite(t, filepath.Join(dir, "textures", "Chair_normal.png"), "png")
	mustWrite(t, filepath.Join(dir, ".DS_Store"), "junk")
	mustWrite(t, filepath.Join(dir, ".cache", "blob"), "junk")

	var buf bytes.Buffer
	if err := writeZip(&buf, dir); err != nil {
		t.Fatalf("writeZip() failed: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("archive unreadable: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == "Chair/Chair.gltf" {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			data, _ := io.ReadAll(rc)
			rc.Close()
			if string(data) != `{"asset":{"version":"2.0"}}` {
				t.Errorf("Chair.gltf content = %q", data)
			}
		}
	}
	sort.Strings(names)

	want := []string{"Chair/Chair.gltf", "Chair/Chair.jpeg", "Chair/textures/Chair_normal.png"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("archive entries mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteZip_MissingDir(t *testing.T) {
	if err := writeZip(io.Discard, filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Error("writeZip() on a missing folder should fail")
	}
}
