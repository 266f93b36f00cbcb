package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/watcher"
)

// addSourceFlags registers the flags selecting which bundle a one-shot
// command works on.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dir", "d", "", "Workspace directory holding the fragment files")
	cmd.Flags().String("from", "", "Plain-text bundle saved from the editor")
	cmd.Flags().String("template", "", "Built-in template name")
	cmd.MarkFlagsMutuallyExclusive("dir", "from", "template")
}

// loadSource resolves the bundle from --from, --template or --dir, falling
// back to the configured workspace and then the configured default content.
func loadSource(cmd *cobra.Command, cfg *config.Config) (bundle.Bundle, error) {
	from, _ := cmd.Flags().GetString("from")
	tmpl, _ := cmd.Flags().GetString("template")
	dir, _ := cmd.Flags().GetString("dir")

	switch {
	case from != "":
		data, err := os.ReadFile(from)
		if err != nil {
			return bundle.Bundle{}, fmt.Errorf("failed to read %s: %w", from, err)
		}
		return bundle.ParsePlainText(string(data))

	case tmpl != "":
		return bundle.NewTemplates(cfg.Editor.DefaultContent.Bundle()).Get(tmpl)
	}

	if dir != "" {
		cfg.Workspace.Dir = dir
	}
	if !cfg.Workspace.Enabled() {
		return cfg.Editor.DefaultContent.Bundle(), nil
	}
	ws, err := watcher.NewWorkspace(cfg.Workspace.Files())
	if err != nil {
		return bundle.Bundle{}, err
	}
	return ws.Load()
}
