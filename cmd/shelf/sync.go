package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/modelshelf/modelshelf/internal/catalog/daemon"
	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	"github.com/modelshelf/modelshelf/internal/logging"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "catalog",
	Short:   "Reconcile the catalog with the root folder",
	Long: `Reconcile the catalog with the folders under the saved root.

This performs a full pass:
  1. Lists the immediate subfolders of the root
  2. Creates or updates an entry for each folder with a thumbnail
  3. Copies new or changed thumbnails into the media cache
  4. Deletes entries whose folder no longer qualifies

Folders that cannot be read are reported and left untouched. The command
exits non-zero if the root is invalid or the catalog cannot be written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, typeID, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		trigger, err := daemon.NewTrigger(store, newReconciler(store, typeID), daemon.Config{
			DefaultRootDir: cfg.DefaultRootDir,
			Logger:         logging.L().Named("daemon"),
		})
		if err != nil {
			return err
		}

		root, err := trigger.RootDir(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s Syncing %s...\n", renderAccent("→"), root)

		res, err := trigger.RunManually(ctx)
		if err != nil {
			fmt.Println(renderError("Sync failed"))
			return err
		}

		fmt.Println(renderOK(fmt.Sprintf("Sync complete in %v", res.Duration.Round(time.Millisecond))))
		fmt.Printf("  Created: %d\n", len(res.Created))
		fmt.Printf("  Updated: %d\n", len(res.Updated))
		fmt.Printf("  Deleted: %d\n", len(res.Deleted))
		fmt.Printf("  Skipped: %d\n", len(res.Skipped))
		fmt.Printf("  Thumbnails copied: %d\n", res.ThumbsCopied)
		if len(res.Failed) > 0 {
			fmt.Println(renderWarn(fmt.Sprintf("%d folders could not be read:", len(res.Failed))))
			for _, f := range res.Failed {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Name, f.Err)
			}
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "catalog",
	Short:   "Show catalog statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		root, err := rootDir(ctx, store)
		if err != nil {
			return err
		}
		total, err := store.CountEntries(ctx, db.EntryFilter{})
		if err != nil {
			return err
		}
		types, err := store.ListModelTypes(ctx)
		if err != nil {
			return err
		}
		tags, err := store.ListTags(ctx)
		if err != nil {
			return err
		}

		lastSync := "never"
		if stamp, err := store.GetSetting(ctx, schema.SettingLastSyncAt); err == nil {
			if t, err := time.Parse(time.RFC3339, stamp); err == nil {
				lastSync = fmt.Sprintf("%s (%s)", t.Local().Format("2006-01-02 15:04"), humanize.Time(t))
			}
		} else if !db.IsNotFound(err) {
			return err
		}

		dbSize := "?"
		if info, err := os.Stat(store.Path()); err == nil {
			dbSize = humanize.Bytes(uint64(info.Size()))
		}

		rootState := root
		if root == "" {
			rootState = warnStyle.Render("not set")
		} else if info, err := os.Stat(root); err != nil || !info.IsDir() {
			rootState = root + " " + warnStyle.Render("(missing)")
		}

		const w = 12
		fmt.Println(headerStyle.Render("Catalog"))
		fmt.Println(field("Root", rootState, w))
		fmt.Println(field("Database", fmt.Sprintf("%s (%s)", store.Path(), dbSize), w))
		fmt.Println(field("Entries", humanize.Comma(int64(total)), w))
		fmt.Println(field("Tags", humanize.Comma(int64(len(tags))), w))
		fmt.Println(field("Last sync", lastSync, w))

		if len(types) > 0 {
			fmt.Println()
			fmt.Println(headerStyle.Render("By type"))
			for _, t := range types {
				n, err := store.CountEntries(ctx, db.EntryFilter{TypeID: t.ID})
				if err != nil {
					return err
				}
				fmt.Println(field(t.Name, humanize.Comma(int64(n)), w))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}

