package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepad/internal/assembler"
	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/errors"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Aliases: []string{"e"},
	Short:   "Write the bundle as a standalone document or plain text",
	Long: `Export the bundle without the preview's diagnostics bridge.

Formats:
  html   A complete HTML document with the style and script inlined
  text   The HTML:, CSS: and JS: sections saved by the editor

Examples:
  livepad export --dir ./pad -o index.html
  livepad export --from sandbox-code.txt
  livepad export --template bootstrap --format text`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addExportFlags(exportCmd)
}

func addExportFlags(cmd *cobra.Command) {
	addSourceFlags(cmd)
	cmd.Flags().StringP("format", "f", "html", "Output format (html, text)")
	cmd.Flags().StringP("output", "o", "-", "Output file, - for stdout")
	AddFlagValidation(cmd, "format", OneOf("html", "text"))
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	b, err := loadSource(cmd, cfg)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("format")
	var out string
	switch format {
	case "html":
		out, err = assembler.New().Standalone(b)
		if err != nil {
			return err
		}
	case "text":
		out = bundle.FormatPlainText(b)
	default:
		return errors.NewValidationError(errors.ErrCodeUnknownFormat,
			fmt.Sprintf("unsupported format: %s (supported: html, text)", format))
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" || output == "-" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	}
	if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
		return errors.NewIOError(errors.ErrCodeIOFailed, "failed to write "+output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes)\n", output, len(out))
	return nil
}
