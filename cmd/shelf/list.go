package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/modelshelf/modelshelf/internal/catalog/db"
	"github.com/modelshelf/modelshelf/internal/catalog/schema"
	"github.com/modelshelf/modelshelf/internal/inspect"
	"github.com/modelshelf/modelshelf/internal/logging"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "catalog",
	Short:   "List catalog entries",
	Long: `List catalog entries, optionally filtered.

Examples:
  shelf list --query chair
  shelf list --tag low-poly --type gltf
  shelf list --since "last month"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query, _ := cmd.Flags().GetString("query")
		tag, _ := cmd.Flags().GetString("tag")
		typeCode, _ := cmd.Flags().GetString("type")
		sinceText, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		f := db.EntryFilter{Query: query, Tag: tag, Limit: limit}
		if typeCode != "" {
			t, err := store.GetModelTypeByCode(ctx, typeCode)
			if err != nil {
				return fmt.Errorf("unknown model type %q: %w", typeCode, err)
			}
			f.TypeID = t.ID
		}
		if sinceText != "" {
			since, err := db.ParseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			f.Since = &since
		}

		entries, err := store.QueryEntries(ctx, f)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No entries found")
			return nil
		}

		types, err := store.ListModelTypes(ctx)
		if err != nil {
			return err
		}
		typeNames := lo.Associate(types, func(t *schema.ModelType) (int64, string) { return t.ID, t.Code })

		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			obtained := ""
			if e.ObtainedOn != nil {
				obtained = e.ObtainedOn.Local().Format("2006-01-02")
			}
			typeCode := ""
			if e.TypeID != nil {
				typeCode = typeNames[*e.TypeID]
			}
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10),
				e.Name,
				typeCode,
				obtained,
				strings.Join(e.Tags, ", "),
				lo.Ternary(e.HasModel(), "yes", ""),
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(labelStyle).
			Headers("ID", "NAME", "TYPE", "OBTAINED", "TAGS", "MODEL").
			Rows(rows...)
		fmt.Println(t)
		fmt.Printf("%d entries\n", len(entries))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:     "inspect <name>",
	GroupID: "catalog",
	Short:   "Show model and texture details for one entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		e, err := store.GetEntryByName(ctx, args[0])
		if db.IsNotFound(err) {
			return fmt.Errorf("no entry named %q", args[0])
		}
		if err != nil {
			return err
		}

		in, err := inspect.New(inspect.Config{
			CachePath: cfg.InspectCache,
			Logger:    logging.L().Named("inspect"),
		})
		if err != nil {
			return err
		}
		defer in.Close()
		report := in.Inspect(e)

		const w = 11
		fmt.Println(headerStyle.Render(e.Name))
		fmt.Println(field("Folder", e.Path, w))
		if e.LinkURL != nil {
			fmt.Println(field("Source", *e.LinkURL, w))
		}
		if e.ObtainedOn != nil {
			fmt.Println(field("Obtained", fmt.Sprintf("%s (%s)",
				e.ObtainedOn.Local().Format("2006-01-02"), humanize.Time(*e.ObtainedOn)), w))
		}
		if len(e.Tags) > 0 {
			fmt.Println(field("Tags", strings.Join(e.Tags, ", "), w))
		}

		fmt.Println()
		switch {
		case report.Model != nil:
			m := report.Model
			fmt.Println(headerStyle.Render("Model"))
			fmt.Println(field("File", fmt.Sprintf("%s (%s)", report.ModelRelPath, humanize.Bytes(uint64(m.FileSize))), w))
			fmt.Println(field("Meshes", humanize.Comma(int64(m.Meshes)), w))
			fmt.Println(field("Vertices", humanize.Comma(int64(m.Vertices)), w))
			fmt.Println(field("Triangles", humanize.Comma(int64(m.Triangles)), w))
		case report.ModelError != "":
			fmt.Println(renderWarn("Could not read model: " + report.ModelError))
		default:
			fmt.Println(labelStyle.Render("No model file"))
		}

		if len(report.Textures) > 0 {
			fmt.Println()
			fmt.Println(headerStyle.Render(fmt.Sprintf("Textures (%d)", len(report.Textures))))
			rows := lo.Map(report.Textures, func(t inspect.Texture, _ int) []string {
				return []string{t.Name, t.Kind, humanize.Bytes(uint64(t.Size)), t.Dimensions()}
			})
			fmt.Println(table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(labelStyle).
				Headers("NAME", "KIND", "SIZE", "DIMENSIONS").
				Rows(rows...))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("query", "q", "", "case-insensitive name search")
	listCmd.Flags().String("tag", "", "only entries with this tag")
	listCmd.Flags().String("type", "", "only entries of this model type code")
	listCmd.Flags().String("since", "", `only entries obtained since ("2024-01-31", "last week")`)
	listCmd.Flags().IntP("limit", "n", 0, "maximum entries to show (0 = all)")

	rootCmd.AddCommand(listCmd, inspectCmd)
}
