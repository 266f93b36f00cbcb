// Package cmd provides the livepad command-line interface.
//
// Configuration is read from, in order of precedence:
//
//  1. Command-line flags (--port, --dir, ...)
//  2. LIVEPAD_<SECTION>_<KEY> environment variables, e.g. LIVEPAD_SERVER_PORT
//  3. The file named by --config or LIVEPAD_CONFIG_FILE, else .livepad.yml
//     in the working directory
//  4. Built-in defaults
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livepad/internal/config"
	"github.com/conneroisu/livepad/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "livepad",
	Short: "A live HTML, CSS and JavaScript scratchpad",
	Long: `livepad is a scratchpad for HTML, CSS and JavaScript with a live preview.
Edits are debounced, assembled into one document and rendered in a sandboxed
frame. Console output and uncaught errors from the preview are collected as
diagnostics.

Quick Start:
  livepad init                 Write .livepad.yml and starter files
  livepad serve --dir .        Edit in the browser with live preview
  livepad check --dir .        Render headlessly and print diagnostics
  livepad export -o page.html  Write a standalone document`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .livepad.yml, can also use LIVEPAD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points the global viper instance at the configuration file.
// A missing file is not an error; defaults and the environment still apply.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livepad")
	}

	config.ConfigureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the --log-level and --log-format
// flags.
func newLogger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: viper.GetString("log.format"),
		Output: w,
	}), nil
}
