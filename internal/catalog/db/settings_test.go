package db

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

func TestSettings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetSetting(ctx, schema.SettingRootDir); !IsNotFound(err) {
		t.Errorf("GetSetting() on empty table error = %v, want ErrNotFound", err)
	}

	got, err := db.GetOrCreateSetting(ctx, schema.SettingRootDir, "/assets")
	if err != nil {
		t.Fatalf("GetOrCreateSetting() failed: %v", err)
	}
	if got != "/assets" {
		t.Errorf("GetOrCreateSetting() = %q, want the default", got)
	}

	got, err = db.GetOrCreateSetting(ctx, schema.SettingRootDir, "/elsewhere")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/assets" {
		t.Errorf("GetOrCreateSetting() = %q, stored value should win over default", got)
	}

	if err := db.SetSetting(ctx, schema.SettingRootDir, "/library"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, schema.SettingLastSyncAt, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []schema.Setting{
		{Key: schema.SettingLastSyncAt, Value: "2024-01-01T00:00:00Z"},
		{Key: schema.SettingRootDir, Value: "/library"},
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("ListSettings() mismatch (-want +got):\n%s", diff)
	}

	if err := db.SetSetting(ctx, " ", "x"); err == nil {
		t.Error("SetSetting() with blank key should fail")
	}
}
