// Command shelf catalogs a folder of 3D model assets and serves a browser
// for it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	catsync "github.com/modelshelf/modelshelf/internal/catalog/sync"
	"github.com/modelshelf/modelshelf/internal/config"
	"github.com/modelshelf/modelshelf/internal/logging"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	v   = config.New()
	cfg *config.Config

	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "shelf",
	Short:         "Catalog and browse a library of 3D model folders",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
	Long: `shelf keeps a SQLite catalog of the model folders under a root directory.

Each immediate subfolder of the root that contains a <name>.jpeg thumbnail
becomes one catalog entry. The catalog records the folder's glTF model and
its source link (<name>.url), dates the entry by the model file, and caches
the thumbnail under the media root.

Configuration is read from shelf.yaml, .env, SHELF_* environment variables
and flags, in increasing order of precedence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, configFile, envFile)
		if err != nil {
			return err
		}
		if err := logging.Init(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		}); err != nil {
			return err
		}
		if cfg.ConfigFile != "" {
			logging.L().Debug("loaded config", zap.String("file", cfg.ConfigFile))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "catalog", Title: "Catalog Commands:"},
		&cobra.Group{ID: "server", Title: "Server Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default: ./shelf.yaml or ~/.config/modelshelf/shelf.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	flags.String("db", "", "catalog database path")
	flags.String("media-root", "", "media directory holding the thumbnail cache")
	flags.String("root", "", "default root folder used until one is saved in settings")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")

	bindFlag(v, "db", flags.Lookup("db"))
	bindFlag(v, "media_root", flags.Lookup("media-root"))
	bindFlag(v, "default_root_dir", flags.Lookup("root"))
	bindFlag(v, "log.level", flags.Lookup("log-level"))
	bindFlag(v, "log.format", flags.Lookup("log-format"))
}

// bindFlag lets a flag override key. Only flags the user set take effect.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", f.Name, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the catalog, creates its tables and makes sure the
// default model type exists. The returned ID is 0 when no default type is
// configured.
func openStore(ctx context.Context) (*db.DB, int64, error) {
	store, err := db.Open(cfg.DB, db.WithLogger(logging.L().Named("db")))
	if err != nil {
		return nil, 0, err
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		store.Close()
		return nil, 0, err
	}

	var typeID int64
	if cfg.DefaultType.Code != "" {
		t, err := store.EnsureModelType(ctx, cfg.DefaultType.Code, cfg.DefaultType.Name)
		if err != nil {
			store.Close()
			return nil, 0, err
		}
		typeID = t.ID
	}
	return store, typeID, nil
}

func newReconciler(store *db.DB, typeID int64) *catsync.Reconciler {
	return catsync.New(store, catsync.Config{
		ThumbDir:      cfg.ThumbDir(),
		DefaultTypeID: typeID,
		Logger:        logging.L().Named("sync"),
	})
}

// rootDir returns the saved root folder, seeding it from the configured
// default.
func rootDir(ctx context.Context, store *db.DB) (string, error) {
	return store.GetOrCreateSetting(ctx, schema.SettingRootDir, cfg.DefaultRootDir)
}
