// Package config loads modelshelf configuration.
//
// Values are resolved from, lowest precedence first: built-in defaults, a
// shelf.yaml config file, a .env file, SHELF_* environment variables and
// command-line flags bound by the caller. DEFAULT_ROOT_DIR is also read
// without the prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// EnvPrefix is the prefix of environment overrides (SHELF_DB, ...).
const EnvPrefix = "SHELF"

// Config is the resolved application configuration.
type Config struct {
	DB             string        `mapstructure:"db"`
	MediaRoot      string        `mapstructure:"media_root"`
	DefaultRootDir string        `mapstructure:"default_root_dir"`
	Listen         string        `mapstructure:"listen"`
	Watch          bool          `mapstructure:"watch"`
	Debounce       time.Duration `mapstructure:"debounce"`
	SyncWait       time.Duration `mapstructure:"sync_wait"`
	InspectCache   string        `mapstructure:"inspect_cache"`
	PageSize       int           `mapstructure:"page_size"`
	DefaultType    TypeConfig    `mapstructure:"default_type"`
	Log            LogConfig     `mapstructure:"log"`

	// ConfigFile is the config file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// TypeConfig names the model type assigned to new entries.
type TypeConfig struct {
	Code string `mapstructure:"code"`
	Name string `mapstructure:"name"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// ThumbDir returns the thumbnail cache directory below the media root.
func (c *Config) ThumbDir() string {
	return filepath.Join(c.MediaRoot, schema.ThumbDir)
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DB) == "" {
		return fmt.Errorf("db path is required")
	}
	if strings.TrimSpace(c.MediaRoot) == "" {
		return fmt.Errorf("media_root is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive (got %d)", c.PageSize)
	}
	if c.SyncWait < 0 || c.Debounce < 0 {
		return fmt.Errorf("sync_wait and debounce must not be negative")
	}
	if c.DefaultType.Code != "" {
		t := schema.ModelType{Code: c.DefaultType.Code, Name: c.DefaultType.Name}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid default_type: %w", err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings.
// Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("db", "shelf.db")
	v.SetDefault("media_root", "media")
	v.SetDefault("default_root_dir", "")
	v.SetDefault("listen", "127.0.0.1:8000")
	v.SetDefault("watch", false)
	v.SetDefault("debounce", 2*time.Second)
	v.SetDefault("sync_wait", 10*time.Second)
	v.SetDefault("inspect_cache", "")
	v.SetDefault("page_size", 20)
	v.SetDefault("default_type.code", "gltf")
	v.SetDefault("default_type.name", "glTF 2.0")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("default_root_dir", EnvPrefix+"_DEFAULT_ROOT_DIR", "DEFAULT_ROOT_DIR")

	return v
}

// Load reads the optional config file and .env file into v and returns
// the resolved configuration. An empty configFile searches for shelf.yaml
// in the working directory and $HOME/.config/modelshelf. An empty envFile
// means ".env".
func Load(v *viper.Viper, configFile, envFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("shelf")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "modelshelf"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if err := LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if cfg.InspectCache == "" {
		cfg.InspectCache = filepath.Join(cfg.MediaRoot, "inspect.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv copies the variables of a dotenv file into the process
// environment. Variables that are already set win. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
	}
	return nil
}
