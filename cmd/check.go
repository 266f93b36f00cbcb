package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/diagnostics"
	"github.com/conneroisu/livepad/internal/errors"
	"github.com/conneroisu/livepad/internal/logging"
	"github.com/conneroisu/livepad/internal/preview"
	"github.com/conneroisu/livepad/internal/realm"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Aliases: []string{"c"},
	Short:   "Render the bundle headlessly and report diagnostics",
	Long: `Render the bundle once through the preview pipeline with a headless script
host and print the render state with every diagnostic the document reported.

A failing script is reported but is not a failed render; the command exits
non-zero only when the pipeline itself fails, or with --strict when any
error diagnostic was reported.

Examples:
  livepad check --dir ./pad
  livepad check --from sandbox-code.txt --format json
  livepad check --template bootstrap --strict`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addCheckFlags(checkCmd)
}

func addCheckFlags(cmd *cobra.Command) {
	addSourceFlags(cmd)
	cmd.Flags().String("format", "text", "Output format (text, json)")
	cmd.Flags().Duration("timeout", 5*time.Second, "Abort scripts running longer than this")
	cmd.Flags().Bool("strict", false, "Fail when the document reports an error")
	AddFlagValidation(cmd, "format", OneOf("text", "json"))
}

type checkReport struct {
	State       preview.RenderState      `json:"state"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	Console     []realm.LogEntry         `json:"console"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	b, err := loadSource(cmd, cfg)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")

	report, err := check(cfg, b, timeout, logger)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	case "text":
		printReport(cmd.OutOrStdout(), report)
	default:
		return errors.NewValidationError(errors.ErrCodeUnknownFormat,
			fmt.Sprintf("unsupported format: %s (supported: text, json)", format))
	}

	if report.State.Status == preview.StatusError {
		return errors.NewHostUnavailableError(errors.ErrCodeHostNoDocument, "render failed: "+report.State.Message)
	}
	if strict {
		for _, d := range report.Diagnostics {
			if d.Kind.IsError() {
				return errors.NewValidationError(errors.ErrCodeValidationFailed,
					"document reported errors")
			}
		}
	}
	return nil
}

// check runs one immediate render of b in a fresh realm.
func check(cfg *config.Config, b bundle.Bundle, timeout time.Duration, logger logging.Logger) (checkReport, error) {
	collector := diagnostics.NewCollector(cfg.Preview.MaxDiagnostics)
	host := realm.New(collector, logger, realm.Config{})

	p, err := preview.New(preview.Options{
		RenderTimeout: timeout,
		Surface:       host,
		Logger:        logger,
		Diagnostics:   collector,
		Initial:       b,
	})
	if err != nil {
		return checkReport{}, err
	}
	defer p.Close()

	if err := p.RequestImmediate(); err != nil {
		return checkReport{}, err
	}

	return checkReport{
		State:       p.State(),
		Diagnostics: collector.List(),
		Console:     host.Console(),
	}, nil
}

func printReport(w io.Writer, r checkReport) {
	fmt.Fprintf(w, "Status: %s\n", r.State.Status)
	if r.State.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", r.State.Message)
	}
	if len(r.Diagnostics) == 0 {
		fmt.Fprintln(w, "No diagnostics")
		return
	}
	fmt.Fprintf(w, "Diagnostics (%d):\n", len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		line := ""
		if d.Line > 0 {
			line = fmt.Sprintf(" line %d", d.Line)
		}
		fmt.Fprintf(w, "  [%s]%s %s\n", d.Kind, line, d.Message)
	}
}
