// Package cli implements the cobra-based command line of nz-ocean-map.
//
// The root command renders one map. Two read-only subcommands, layers and
// grid, inspect the catalog and the tile grid without touching the
// network. This file defines the root command, the global flags and the
// translation of errors into exit codes.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/nz-ocean-map/internal/config"
	"github.com/shinji-kodama/nz-ocean-map/internal/logging"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// Version, Commit and Date are set from main, which receives them through
// ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalFlags holds the persistent flags shared by every command.
type globalFlags struct {
	// configFile is an explicit config file; empty means search the
	// default locations.
	configFile string

	// jsonOutput switches stdout and error output to JSON.
	jsonOutput bool

	// verbose forces debug logging regardless of log.level.
	verbose bool
}

// NewRootCommand creates the root command with its subcommands.
func NewRootCommand() *cobra.Command {
	global := &globalFlags{}
	render := &renderFlags{}

	rootCmd := &cobra.Command{
		Use:   "nz-ocean-map",
		Short: "Render New Zealand ocean maps from the Copernicus Marine WMTS",
		Long: `nz-ocean-map downloads ocean data tiles for the New Zealand region,
stitches them into one image, adds a title banner and a colour-scale legend,
and writes a PNG.

Without --output the image goes to latest/<type>.png under output.root, or
to archive/<date>/<type>-<time>.png with --archive.

Exit codes:
  0  success
  1  general error
  2  invalid option
  3  network error (a tile could not be fetched)
  4  output could not be written
  5  configuration error

Examples:
  nz-ocean-map
  nz-ocean-map --type anomaly --zoom 7
  nz-ocean-map -t salinity -d 1 -o salinity-tomorrow.png
  nz-ocean-map --archive --metrics-file /var/lib/node_exporter/nzmap.prom`,

		Args: noArgs,

		// Errors are printed by Execute, in text or JSON.
		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, global, render)
		},
	}

	rootCmd.PersistentFlags().StringVar(&global.configFile, "config", "", "Config file (default: ./nz-ocean-map.yaml, then ~/.config/nz-ocean-map/nz-ocean-map.yaml)")
	rootCmd.PersistentFlags().BoolVar(&global.jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&global.verbose, "verbose", "v", false, "Enable debug logging")
	render.register(rootCmd)

	// Bad flag values are invalid options, not general errors.
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return model.WrapCLIError(model.ExitInvalidOption, "invalid option", err)
	})

	rootCmd.AddCommand(NewLayersCommand(global))
	rootCmd.AddCommand(NewGridCommand(global))

	return rootCmd
}

// noArgs rejects positional arguments as an invalid option.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return model.NewCLIError(model.ExitInvalidOption,
			fmt.Sprintf("unexpected argument %q for %q", args[0], cmd.CommandPath()))
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
//
// CLIError values carry their own exit code; any other error exits with
// ExitGeneralError. The error is written to the command's stderr, as JSON
// when --json is set.
func Execute(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json")
	w := rootCmd.ErrOrStderr()

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(w, jsonOutput, cliErr.Code, cliErr.Message, cliErr.Err)
		return int(cliErr.Code)
	}

	// Unknown subcommands and similar cobra errors.
	printError(w, jsonOutput, model.ExitGeneralError, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// printError writes an error as "Error: <message>: <cause>" or, with
// --json, as {"error": {"code", "message", "detail"}}.
func printError(w io.Writer, jsonOutput bool, code model.ExitCode, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]any{
			"code":    int(code),
			"message": message,
		}
		if underlying != nil {
			errObj["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": errObj}, "", "  ")
		_, _ = fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		_, _ = fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		_, _ = fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// loadConfig loads the configuration and reports failures as a
// ConfigurationError.
func loadConfig(global *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(global.configFile)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigurationError, "invalid configuration", err)
	}
	return cfg, nil
}

// newLogger builds the logger for a command. Logs go to stderr so stdout
// stays clean for --json output.
func newLogger(cmd *cobra.Command, cfg *config.Config, global *globalFlags) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if global.verbose {
		level = slog.LevelDebug
	}
	return logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)
}

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
