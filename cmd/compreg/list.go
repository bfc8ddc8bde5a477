package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/catalog"
)

func listCmd() *cobra.Command {
	var (
		registryPath string
		category     string
		keyword      string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List components in the registry file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			path, err := a.registryPath(registryPath)
			if err != nil {
				return err
			}

			qs, err := catalog.LoadAndQuery(path)
			if err != nil {
				return err
			}
			records := qs.ListComponents(catalog.Category(category), keyword)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if err := renderComponents(out, records); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d components\n", len(records), len(qs.Document.Components))
			return nil
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "Registry file (default from config outputPath)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category: atom, molecule, organism, unknown")
	cmd.Flags().StringVar(&keyword, "keyword", "", "Filter by keyword in name, path or description")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")

	return cmd
}

// renderComponents writes one table row per record.
func renderComponents(w io.Writer, records []catalog.ComponentRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header("Name", "Category", "Props", "Exports", "Path", "Detection")
	for _, c := range records {
		if err := table.Append(
			c.Name,
			string(c.Category),
			strconv.Itoa(len(c.Props)),
			strings.Join(c.Exports, ", "),
			c.Path,
			string(c.DetectionMethod),
		); err != nil {
			return err
		}
	}
	return table.Render()
}
