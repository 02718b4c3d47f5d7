// Package inspect reads lightweight statistics from glTF model files and
// the PNG textures stored next to them.
//
// Only the JSON part of a glTF file is read; binary buffers are never
// loaded. Results can be cached in a bbolt database keyed by file path and
// invalidated when a file's size or modification time changes.
package inspect

import (
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

// primitive modes from the glTF 2.0 specification
const (
	modeTriangles     = 4
	modeTriangleStrip = 5
	modeTriangleFan   = 6
)

// GLTFStats summarizes the geometry of a glTF file.
type GLTFStats struct {
	FileSize  int64 `json:"file_size"`
	Meshes    int   `json:"meshes"`
	Vertices  int   `json:"vertices"`
	Triangles int   `json:"triangles"`
}

// AnalyzeGLTF reads the glTF file at path.
//
// Vertices is the sum of the POSITION accessor counts of every primitive.
// Triangles counts triangle, strip and fan primitives, using the index
// accessor when present.
func AnalyzeGLTF(path string) (GLTFStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GLTFStats{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	stats, err := ParseGLTF(data)
	if err != nil {
		return GLTFStats{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	stats.FileSize = int64(len(data))
	return stats, nil
}

// ParseGLTF computes stats from glTF JSON. FileSize is left zero.
func ParseGLTF(data []byte) (GLTFStats, error) {
	if !gjson.ValidBytes(data) {
		return GLTFStats{}, fmt.Errorf("invalid glTF JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return GLTFStats{}, fmt.Errorf("glTF root must be an object")
	}

	accessors := doc.Get("accessors").Array()
	count := func(idx gjson.Result) int {
		if !idx.Exists() {
			return 0
		}
		i := int(idx.Int())
		if i < 0 || i >= len(accessors) {
			return 0
		}
		return int(accessors[i].Get("count").Int())
	}

	var stats GLTFStats
	meshes := doc.Get("meshes").Array()
	stats.Meshes = len(meshes)

	for _, mesh := range meshes {
		for _, prim := range mesh.Get("primitives").Array() {
			verts := count(prim.Get("attributes.POSITION"))
			stats.Vertices += verts

			n := verts
			if idx := prim.Get("indices"); idx.Exists() {
				n = count(idx)
			}

			mode := modeTriangles
			if m := prim.Get("mode"); m.Exists() {
				mode = int(m.Int())
			}
			switch mode {
			case modeTriangles:
				stats.Triangles += n / 3
			case modeTriangleStrip, modeTriangleFan:
				if n >= 3 {
					stats.Triangles += n - 2
				}
			}
		}
	}
	return stats, nil
}
