package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"t"},
	Short:   "List the built-in starter templates",
	RunE:    runTemplates,
}

var templatesFormat string

func init() {
	rootCmd.AddCommand(templatesCmd)

	templatesCmd.Flags().StringVarP(&templatesFormat, "format", "f", "table", "Output format (table, json)")
	AddFlagValidation(templatesCmd, "format", OneOf("table", "json"))
}

func runTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	templates := bundle.NewTemplates(cfg.Editor.DefaultContent.Bundle()).List()

	switch templatesFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(templates)
	case "table":
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTITLE\tSIZE")
		for _, t := range templates {
			fmt.Fprintf(w, "%s\t%s\t%d\n", t.Name, t.Title, t.Bundle.Size())
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", templatesFormat)
	}
}
