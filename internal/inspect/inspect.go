package inspect

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	"github.com/modelshelf/modelshelf/internal/metrics"
)

// Report is everything the detail view shows about an entry's files.
type Report struct {
	// Model is nil when the entry has no model or it could not be read.
	Model *GLTFStats `json:"model,omitempty"`
	// ModelError explains why Model is nil despite a model path.
	ModelError string `json:"model_error,omitempty"`
	// ModelRelPath is the model path relative to the entry folder.
	ModelRelPath string    `json:"model_rel_path,omitempty"`
	Textures     []Texture `json:"textures"`
}

// Config configures an Inspector.
type Config struct {
	// CachePath is the bbolt cache file. Empty disables caching.
	CachePath string
	Logger    *zap.Logger
}

// Inspector produces Reports, optionally caching per-file results.
type Inspector struct {
	cache  *Cache
	logger *zap.Logger
}

// New creates an Inspector.
func New(cfg Config) (*Inspector, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	in := &Inspector{logger: cfg.Logger}
	if cfg.CachePath != "" {
		cache, err := OpenCache(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		in.cache = cache
	}
	return in, nil
}

// Close releases the cache.
func (in *Inspector) Close() error {
	if in.cache == nil {
		return nil
	}
	return in.cache.Close()
}

// Inspect reads the model and textures of e. Missing or unreadable files
// are reported in the Report rather than as an error.
func (in *Inspector) Inspect(e *schema.Entry) *Report {
	rep := &Report{
		ModelRelPath: e.ModelRelPath(),
		Textures:     []Texture{},
	}

	if e.HasModel() {
		stats, err := in.gltf(*e.ModelPath)
		if err != nil {
			rep.ModelError = err.Error()
			in.logger.Debug("failed to analyze model", zap.String("entry", e.Name), zap.Error(err))
		} else {
			rep.Model = &stats
		}
	}

	dir := filepath.Join(e.Path, TextureDir)
	files, err := listTextures(dir)
	if err != nil {
		in.logger.Debug("failed to list textures", zap.String("entry", e.Name), zap.Error(err))
	}
	for _, f := range files {
		rep.Textures = append(rep.Textures, in.texture(filepath.Join(dir, f.Name())))
	}
	return rep
}

func (in *Inspector) gltf(path string) (GLTFStats, error) {
	info, err := os.Stat(path)
	if err != nil {
		return GLTFStats{}, err
	}

	var stats GLTFStats
	key := "gltf:" + path
	if in.cache != nil {
		hit := in.cache.Get(key, info, &stats)
		metrics.RecordInspectCache(hit)
		if hit {
			return stats, nil
		}
	}

	stats, err = AnalyzeGLTF(path)
	if err != nil {
		return GLTFStats{}, err
	}
	in.store(key, info, stats)
	return stats, nil
}

func (in *Inspector) texture(path string) Texture {
	tex := Texture{
		Name: filepath.Base(path),
		Kind: TextureKind(filepath.Base(path)),
	}
	info, err := os.Stat(path)
	if err != nil {
		return tex
	}
	tex.Size = info.Size()

	key := "png:" + path
	if in.cache != nil {
		var cached Texture
		hit := in.cache.Get(key, info, &cached)
		metrics.RecordInspectCache(hit)
		if hit {
			return cached
		}
	}

	if w, h, err := decodeSize(path); err == nil {
		tex.Width, tex.Height = w, h
	}
	in.store(key, info, tex)
	return tex
}

func (in *Inspector) store(key string, info os.FileInfo, v interface{}) {
	if in.cache == nil {
		return
	}
	if err := in.cache.Put(key, info, v); err != nil {
		in.logger.Warn("failed to write inspection cache", zap.String("key", key), zap.Error(err))
	}
}
