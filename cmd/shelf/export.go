package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/export"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "catalog",
	Short:   "Write the catalog as JSON lines or YAML",
	Long: `Write every catalog entry with its classification.

Examples:
  shelf export > catalog.jsonl
  shelf export --format yaml --output catalog.yaml
  shelf export --tag low-poly`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		formatName, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		tag, _ := cmd.Flags().GetString("tag")
		sinceText, _ := cmd.Flags().GetString("since")

		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		f := db.EntryFilter{Tag: tag}
		if sinceText != "" {
			since, err := db.ParseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			f.Since = &since
		}

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer file.Close()
			w = file
		}

		n, err := export.Write(ctx, w, store, f, format)
		if err != nil {
			return err
		}
		if output != "" && output != "-" {
			fmt.Fprintln(os.Stderr, renderOK(fmt.Sprintf("Exported %d entries to %s", n, output)))
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "catalog",
	Short:   "Restore types, categories and tags from an export",
	Long: `Restore the classification recorded in an export onto the catalog.

Entries are matched by folder name. Records for folders that are not in the
catalog are listed and skipped; run sync first so every folder is present.
The format defaults to the file extension (.yaml/.yml or JSON lines).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		formatName, _ := cmd.Flags().GetString("format")
		if formatName == "" {
			formatName = strings.TrimPrefix(filepath.Ext(args[0]), ".")
		}
		format, err := export.ParseFormat(formatName)
		if err != nil {
			return err
		}

		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := export.Import(ctx, file, store, format)
		if err != nil {
			return err
		}
		fmt.Println(renderOK(fmt.Sprintf("Restored %d entries", res.Applied)))
		if len(res.Missing) > 0 {
			fmt.Println(renderWarn(fmt.Sprintf("%d records name no cataloged folder: %s",
				len(res.Missing), strings.Join(res.Missing, ", "))))
		}
		for _, err := range res.Failed {
			fmt.Fprintln(os.Stderr, renderError(err.Error()))
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d records could not be applied", len(res.Failed))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "jsonl", "output format (jsonl, yaml)")
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	exportCmd.Flags().String("tag", "", "only entries with this tag")
	exportCmd.Flags().String("since", "", "only entries obtained since this date")

	importCmd.Flags().StringP("format", "f", "", "input format (jsonl, yaml; default from extension)")

	rootCmd.AddCommand(exportCmd, importCmd)
}
