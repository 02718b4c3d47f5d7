package inspect

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TextureDir is the folder below an entry holding its textures.
const TextureDir = "textures"

// textureKinds maps a filename fragment to a map kind. Order matters: the
// first fragment found in the lowercased name wins.
var textureKinds = []struct {
	fragment string
	kind     string
}{
	{"diffuse", "Diffuse"},
	{"albedo", "Albedo"},
	{"basecolor", "Base Color"},
	{"normal", "Normal"},
	{"bump", "Bump"},
	{"roughness", "Roughness"},
	{"metallic", "Metallic"},
	{"glossiness", "Glossiness"},
	{"specular", "Specular"},
	{"opacity", "Opacity"},
	{"emissive", "Emissive"},
	{"ao", "Ambient Occlusion"},
	{"occlusion", "Ambient Occlusion"},
}

// UnknownKind is reported for textures whose name matches no known map.
const UnknownKind = "unknown"

// TextureKind classifies a texture by its file name.
func TextureKind(name string) string {
	lower := strings.ToLower(name)
	for _, k := range textureKinds {
		if strings.Contains(lower, k.fragment) {
			return k.kind
		}
	}
	return UnknownKind
}

// Texture describes one PNG in an entry's textures folder.
type Texture struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Size   int64  `json:"size"`
	Width  int    `json:"width"`  // 0 when the image could not be decoded
	Height int    `json:"height"` // 0 when the image could not be decoded
}

// Dimensions formats the pixel size, or "?" when unknown.
func (t Texture) Dimensions() string {
	if t.Width == 0 || t.Height == 0 {
		return "?"
	}
	return fmt.Sprintf("%d×%d", t.Width, t.Height)
}

// RelPath returns the texture path relative to the entry folder.
func (t Texture) RelPath() string {
	return TextureDir + "/" + t.Name
}

// listTextures returns the *.png files directly inside dir, sorted by
// name. A missing dir yields no textures.
func listTextures(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list textures in %s: %w", dir, err)
	}

	var pngs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			continue
		}
		pngs = append(pngs, e)
	}
	sort.Slice(pngs, func(i, j int) bool { return pngs[i].Name() < pngs[j].Name() })
	return pngs, nil
}

// decodeSize reads only the PNG header of path.
func decodeSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
