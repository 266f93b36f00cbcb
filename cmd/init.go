package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livepad/internal/bundle"
	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/watcher"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Write a default configuration and starter files",
	Long: `Initialize a livepad workspace. Writes .livepad.yml with every setting at
its default and index.html, style.css and script.js from a starter template.
If no directory is given, the current directory is used.

Examples:
  livepad init                     # Basic template in the current directory
  livepad init pad --template tailwind # Tailwind starter in ./pad
  livepad init --force             # Overwrite existing files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initTemplate string
	initForce    bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initTemplate, "template", "t", bundle.BasicTemplate, "Starter template (see livepad templates)")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	defaults := config.Default()
	starter, err := bundle.NewTemplates(defaults.Editor.DefaultContent.Bundle()).Get(initTemplate)
	if err != nil {
		return err
	}

	defaults.Workspace.Dir = dir
	ws, err := watcher.NewWorkspace(defaults.Workspace.Files())
	if err != nil {
		return err
	}
	if !initForce {
		for _, name := range ws.Names() {
			if _, err := os.Stat(filepath.Join(ws.Dir(), name)); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", name)
			}
		}
	}

	if err := config.WriteDefault(filepath.Join(dir, config.DefaultFilename), initForce); err != nil {
		return err
	}
	if err := ws.Save(starter); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized livepad workspace in %s\n", ws.Dir())
	fmt.Fprintf(out, "  %s\n", config.DefaultFilename)
	for _, name := range ws.Names() {
		fmt.Fprintf(out, "  %s\n", name)
	}
	fmt.Fprintf(out, "\nStart editing with: livepad serve --dir %s --watch\n", dir)
	return nil
}
