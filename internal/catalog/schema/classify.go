package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ModelType is a high-level format family such as glTF or HDR.
type ModelType struct {
	ID   int64  `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"` // machine key, unique ("gltf")
	Name string `json:"name" yaml:"name"` // human label ("glTF 2.0")
}

var typeCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks code and name.
func (t *ModelType) Validate() error {
	if t.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(t.Code) > 50 {
		return fmt.Errorf("code must be 50 characters or less (got %d)", len(t.Code))
	}
	if !typeCodePattern.MatchString(t.Code) {
		return fmt.Errorf("code must be lowercase letters, digits, '-' or '_' (got %q)", t.Code)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 100 {
		return fmt.Errorf("name must be 100 characters or less (got %d)", len(t.Name))
	}
	return nil
}

// Category is a user-defined bucket inside a ModelType.
type Category struct {
	ID     int64  `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	TypeID int64  `json:"type_id" yaml:"type_id"`
}

// Validate checks name and owning type.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(c.Name) > 100 {
		return fmt.Errorf("name must be 100 characters or less (got %d)", len(c.Name))
	}
	if c.TypeID <= 0 {
		return fmt.Errorf("type_id is required")
	}
	return nil
}

// Tag is a free-form label ("low-poly", "PBR").
type Tag struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// NormalizeTag trims a label and rejects empty or oversized ones.
func NormalizeTag(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("tag name is required")
	}
	if len(name) > 50 {
		return "", fmt.Errorf("tag must be 50 characters or less (got %d)", len(name))
	}
	return name, nil
}

// Setting keys.
const (
	SettingRootDir    = "ROOT_DIR"
	SettingLastSyncAt = "LAST_SYNC_AT"
)

// Setting is one row of the key/value settings table.
type Setting struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}
