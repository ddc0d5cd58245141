package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/nz-ocean-map/internal/catalog"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// NewLayersCommand creates the "layers" command, which prints the layer
// catalog after any catalog.file override has been applied.
func NewLayersCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "layers",
		Short: "List the data types and the WMTS layers behind them",
		Long: `List every data type with the WMTS layer, style and time step used to
render it. Overrides from catalog.file are included.

Examples:
  nz-ocean-map layers
  nz-ocean-map layers --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Catalog.File)
			if err != nil {
				return model.WrapCLIError(model.ExitConfigurationError, "invalid layer catalog", err)
			}
			if global.jsonOutput {
				return printLayersJSON(cmd.OutOrStdout(), cat)
			}
			return printLayersText(cmd.OutOrStdout(), cat)
		},
	}
}

// layerJSON is one entry of the --json output.
type layerJSON struct {
	Type string `json:"type"`
	catalog.Layer
}

func printLayersJSON(w io.Writer, cat catalog.Catalog) error {
	result := struct {
		Layers []layerJSON `json:"layers"`
	}{Layers: make([]layerJSON, 0, len(cat))}

	for _, dt := range cat.Types() {
		result.Layers = append(result.Layers, layerJSON{Type: dt.String(), Layer: cat[dt]})
	}
	return writeJSON(w, result)
}

// printLayersText prints one row per data type:
//
//	TYPE         INTERVAL  STYLE            TITLE
//	temperature  6h        cmap:thermal     Sea Surface Temperature
//	             GLOBAL_ANALYSISFORECAST_PHY_001_024/.../thetao
func printLayersText(w io.Writer, cat catalog.Catalog) error {
	if _, err := fmt.Fprintf(w, "%-12s %-9s %-40s %s\n", "TYPE", "INTERVAL", "STYLE", "TITLE"); err != nil {
		return err
	}
	for _, dt := range cat.Types() {
		l := cat[dt]
		if _, err := fmt.Fprintf(w, "%-12s %-9s %-40s %s\n%-12s %s\n",
			dt, l.Interval, l.Style, l.Title, "", l.Layer); err != nil {
			return err
		}
	}
	return nil
}
