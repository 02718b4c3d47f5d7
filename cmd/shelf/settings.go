package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
)

// settingNames maps the names accepted on the command line to stored keys.
var settingNames = map[string]string{
	"root":      schema.SettingRootDir,
	"last-sync": schema.SettingLastSyncAt,
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "catalog",
	Short:   "Show or change stored settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Print one setting, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 1 {
			key, err := settingKey(args[0])
			if err != nil {
				return err
			}
			value, err := store.GetSetting(ctx, key)
			if db.IsNotFound(err) {
				return fmt.Errorf("%s is not set", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		}

		settings, err := store.ListSettings(ctx)
		if err != nil {
			return err
		}
		for _, s := range settings {
			fmt.Println(field(s.Key, s.Value, 14))
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set root [path]",
	Short: "Change the root folder",
	Long: `Change the root folder scanned by sync.

Without a path, and when stdin is a terminal, the new path is prompted for.
The folder is not required to exist yet; sync reports it if it is missing.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if args[0] != "root" {
			return fmt.Errorf("only the root setting can be changed (got %q)", args[0])
		}

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		var path string
		if len(args) == 2 {
			path = args[1]
		} else {
			if !stdinIsTerminal() {
				return errors.New("path argument required when not running interactively")
			}
			current, err := rootDir(ctx, store)
			if err != nil {
				return err
			}
			if path, err = promptRoot(current); err != nil {
				return err
			}
		}

		path = strings.TrimSpace(path)
		if path == "" {
			return errors.New("root folder path is required")
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if err := store.SetSetting(ctx, schema.SettingRootDir, path); err != nil {
			return err
		}

		fmt.Println(renderOK("Root folder path updated: " + path))
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			fmt.Println(renderWarn("The folder does not exist yet; sync will fail until it does."))
		}
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func settingKey(name string) (string, error) {
	if key, ok := settingNames[strings.ToLower(name)]; ok {
		return key, nil
	}
	for _, key := range settingNames {
		if strings.EqualFold(name, key) {
			return key, nil
		}
	}
	return "", fmt.Errorf("unknown setting %q (want root or last-sync)", name)
}

func promptRoot(current string) (string, error) {
	path := current
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Root folder").
				Description("Folder whose subfolders are cataloged").
				Value(&path).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("path is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}
	return path, nil
}
