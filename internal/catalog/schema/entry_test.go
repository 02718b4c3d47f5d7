package schema

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEntry_Validate(t *testing.T) {
	abs := filepath.Join(string(filepath.Separator), "assets", "Chair")

	tests := []struct {
		name    string
		entry   Entry
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid entry",
			entry: Entry{Name: "Chair", Path: abs, ThumbRef: String("thumbs/Chair.jpeg")},
		},
		{
			name:    "missing name",
			entry:   Entry{Path: abs},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "name with separator",
			entry:   Entry{Name: "a/b", Path: abs},
			wantErr: true,
			errMsg:  "single path element",
		},
		{
			name:    "parent directory name",
			entry:   Entry{Name: "..", Path: abs},
			wantErr: true,
			errMsg:  "single path element",
		},
		{
			name:    "missing path",
			entry:   Entry{Name: "Chair"},
			wantErr: true,
			errMsg:  "path is required",
		},
		{
			name:    "relative path",
			entry:   Entry{Name: "Chair", Path: "assets/Chair"},
			wantErr: true,
			errMsg:  "path must be absolute",
		},
		{
			name:    "absolute thumb ref",
			entry:   Entry{Name: "Chair", Path: abs, ThumbRef: String(abs)},
			wantErr: true,
			errMsg:  "thumb_ref must be relative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.errMsg)
			}
		})
	}
}

func TestFilesFor(t *testing.T) {
	dir := filepath.Join("root", "Chair")
	files := FilesFor(dir, "Chair")

	if want := filepath.Join(dir, "Chair.jpeg"); files.Thumb != want {
		t.Errorf("Thumb = %q, want %q", files.Thumb, want)
	}
	if want := filepath.Join(dir, "Chair.gltf"); files.Model != want {
		t.Errorf("Model = %q, want %q", files.Model, want)
	}
	if want := filepath.Join(dir, "Chair.url"); files.Link != want {
		t.Errorf("Link = %q, want %q", files.Link, want)
	}
}

func TestThumbRefFor(t *testing.T) {
	if got := ThumbRefFor("My_Model"); got != "thumbs/My_Model.jpeg" {
		t.Errorf("ThumbRefFor() = %q, want thumbs/My_Model.jpeg", got)
	}
}

func TestEntry_ModelRelPath(t *testing.T) {
	dir := filepath.Join(string(filepath.Separator), "assets", "Chair")

	e := Entry{Name: "Chair", Path: dir, ModelPath: String(filepath.Join(dir, "models", "Chair.gltf"))}
	if got := e.ModelRelPath(); got != "models/Chair.gltf" {
		t.Errorf("ModelRelPath() = %q, want models/Chair.gltf", got)
	}

	outside := Entry{Name: "Chair", Path: dir, ModelPath: String(filepath.Join(string(filepath.Separator), "elsewhere", "x.gltf"))}
	if got := outside.ModelRelPath(); got != "" {
		t.Errorf("ModelRelPath() for outside model = %q, want empty", got)
	}

	none := Entry{Name: "Chair", Path: dir}
	if got := none.ModelRelPath(); got != "" {
		t.Errorf("ModelRelPath() without model = %q, want empty", got)
	}
}

func TestEqualHelpers(t *testing.T) {
	if !EqualString(nil, nil) || EqualString(nil, String("")) || !EqualString(String("a"), String("a")) {
		t.Error("EqualString mismatch")
	}
	if !EqualInt64(nil, nil) || EqualInt64(Int64(1), nil) || !EqualInt64(Int64(2), Int64(2)) {
		t.Error("EqualInt64 mismatch")
	}

	now := time.Now()
	if !EqualTime(Time(now), Time(now.In(time.FixedZone("x", 3600)))) {
		t.Error("EqualTime should compare instants, not zones")
	}
	if EqualTime(Time(now), nil) {
		t.Error("EqualTime(t, nil) should be false")
	}
}

func TestModelType_Validate(t *testing.T) {
	tests := []struct {
		name    string
		typ     ModelType
		wantErr bool
	}{
		{"valid", ModelType{Code: "gltf", Name: "glTF 2.0"}, false},
		{"missing code", ModelType{Name: "glTF"}, true},
		{"uppercase code", ModelType{Code: "GLTF", Name: "glTF"}, true},
		{"missing name", ModelType{Code: "gltf"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.typ.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	if got, err := NormalizeTag("  low-poly "); err != nil || got != "low-poly" {
		t.Errorf("NormalizeTag() = %q, %v", got, err)
	}
	if _, err := NormalizeTag("   "); err == nil {
		t.Error("NormalizeTag(blank) should fail")
	}
	if _, err := NormalizeTag(strings.Repeat("x", 51)); err == nil {
		t.Error("NormalizeTag(long) should fail")
	}
}
