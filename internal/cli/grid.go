package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/nz-ocean-map/internal/grid"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// NewGridCommand creates the "grid" command, which shows the tile ranges
// the configured region resolves to. It never contacts the provider.
func NewGridCommand(global *globalFlags) *cobra.Command {
	var zoom int

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Show the tile range covering the configured region",
		Long: `Resolve the configured region against the tile matrix set and print the
tile rows and columns a render would download, with the resulting image size.
Without --zoom every supported zoom level is shown.

Examples:
  nz-ocean-map grid
  nz-ocean-map grid --zoom 7 --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			zooms := model.AllZooms
			if cmd.Flags().Changed("zoom") {
				z, err := model.ParseZoom(zoom)
				if err != nil {
					return model.WrapCLIError(model.ExitInvalidOption, "invalid --zoom", err)
				}
				zooms = []model.Zoom{z}
			}

			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			tms, err := grid.ParseTileMatrixSet(cfg.WMTS.TileMatrixSet)
			if err != nil {
				return err
			}

			rows := make([]gridRowJSON, 0, len(zooms))
			for _, z := range zooms {
				r, err := grid.Resolve(tms, regionBound(cfg.Region), int(z))
				if err != nil {
					return err
				}
				rows = append(rows, gridRowJSON{
					Range:  r,
					Tiles:  r.Count(),
					Width:  r.Cols() * cfg.WMTS.TileSize,
					Height: r.Rows() * cfg.WMTS.TileSize,
				})
			}

			if global.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), struct {
					TileMatrixSet string        `json:"tileMatrixSet"`
					Ranges        []gridRowJSON `json:"ranges"`
				}{tms.Identifier(), rows})
			}
			return printGridText(cmd.OutOrStdout(), tms.Identifier(), rows)
		},
	}

	cmd.Flags().IntVarP(&zoom, "zoom", "z", int(model.DefaultZoom), "Zoom level: 5, 6 or 7 (default: all)")
	return cmd
}

// gridRowJSON is one zoom level of the grid output.
type gridRowJSON struct {
	grid.Range
	Tiles  int `json:"tiles"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// printGridText prints the ranges as a table:
//
//	ZOOM  ROWS     COLS     TILES  SIZE
//	5     22-24    61-63    9      768x768
func printGridText(w io.Writer, tms string, rows []gridRowJSON) error {
	if _, err := fmt.Fprintf(w, "Tile matrix set: %s\n%-5s %-9s %-9s %-6s %s\n",
		tms, "ZOOM", "ROWS", "COLS", "TILES", "SIZE"); err != nil {
		return err
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%-5d %-9s %-9s %-6d %dx%d\n",
			r.Zoom,
			fmt.Sprintf("%d-%d", r.MinRow, r.MaxRow),
			fmt.Sprintf("%d-%d", r.MinCol, r.MaxCol),
			r.Tiles, r.Width, r.Height); err != nil {
			return err
		}
	}
	return nil
}
