package cli

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/nz-ocean-map/internal/catalog"
	"github.com/shinji-kodama/nz-ocean-map/internal/config"
	"github.com/shinji-kodama/nz-ocean-map/internal/grid"
	"github.com/shinji-kodama/nz-ocean-map/internal/metrics"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
	"github.com/shinji-kodama/nz-ocean-map/internal/pipeline"
	"github.com/shinji-kodama/nz-ocean-map/internal/wmts"
)

// renderFlags holds the per-run flags of the root command.
type renderFlags struct {
	dataType      string
	zoom          int
	days          int
	output        string
	noLegend      bool
	noTitle       bool
	archive       bool
	legendPreview bool
	metricsFile   string
}

func (f *renderFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.dataType, "type", "t", string(model.TypeTemperature),
		"Data type: temperature, anomaly, salinity, currents")
	cmd.Flags().IntVarP(&f.zoom, "zoom", "z", int(model.DefaultZoom),
		"Zoom level: 5 (low), 6 (medium), 7 (high)")
	cmd.Flags().IntVarP(&f.days, "days", "d", 0,
		"Day offset: 0 today, 1 tomorrow, -1 yesterday")
	cmd.Flags().StringVarP(&f.output, "output", "o", "",
		"Output file (default: latest/<type>.png under output.root)")
	cmd.Flags().BoolVar(&f.noLegend, "no-legend", false, "Do not attach the colour-scale legend")
	cmd.Flags().BoolVar(&f.noTitle, "no-title", false, "Do not add the title banner")
	cmd.Flags().BoolVar(&f.archive, "archive", false,
		"Write to archive/<date>/<type>-<time>.png instead of latest/")
	cmd.Flags().BoolVar(&f.legendPreview, "legend-preview", false,
		"Print the legend colours to stderr")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "",
		"Write Prometheus textfile metrics to this path (overrides metrics.file)")
}

// renderResultJSON is the --json output of a successful run.
type renderResultJSON struct {
	DataType string     `json:"dataType"`
	Zoom     int        `json:"zoom"`
	Time     string     `json:"time"`
	Local    string     `json:"localTime"`
	Path     string     `json:"path"`
	Bytes    int64      `json:"bytes"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Tiles    int        `json:"tiles"`
	Range    grid.Range `json:"range"`
	Legend   bool       `json:"legend"`
}

// runRender validates the options, wires the pipeline from the
// configuration and renders one map.
func runRender(cmd *cobra.Command, global *globalFlags, flags *renderFlags) error {
	// Options are validated before configuration or network are touched.
	req, err := model.NewMapRequest(flags.dataType, flags.zoom, flags.days,
		!flags.noLegend, !flags.noTitle, flags.output, flags.archive)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, global)

	runner, err := newRunner(cfg, log)
	if err != nil {
		return err
	}
	if flags.legendPreview {
		runner.LegendPreview = cmd.ErrOrStderr()
	}

	metricsFile := cfg.Metrics.File
	if flags.metricsFile != "" {
		metricsFile = flags.metricsFile
	}

	start := time.Now()
	res, runErr := runner.Run(cmd.Context(), req)
	recordMetrics(log, metricsFile, req, res, runErr, time.Since(start))
	if runErr != nil {
		return runErr
	}

	return printRenderResult(cmd.OutOrStdout(), global.jsonOutput, req, res)
}

// newRunner builds a pipeline.Runner from the configuration.
func newRunner(cfg *config.Config, log *slog.Logger) (*pipeline.Runner, error) {
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigurationError, "invalid layer catalog", err)
	}

	tms, err := grid.ParseTileMatrixSet(cfg.WMTS.TileMatrixSet)
	if err != nil {
		return nil, err
	}

	loc, err := wmts.NewZealand()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigurationError, "time zone data unavailable", err)
	}

	client, err := wmts.NewClient(wmts.Options{
		Endpoint:      cfg.WMTS.Endpoint,
		TileMatrixSet: tms.Identifier(),
		Timeout:       cfg.WMTS.Timeout,
		Concurrency:   cfg.WMTS.Concurrency,
		UserAgent:     cfg.WMTS.UserAgent,
	}, log)
	if err != nil {
		return nil, err
	}

	return &pipeline.Runner{
		Fetcher:  client,
		Catalog:  cat,
		Matrix:   tms,
		Region:   regionBound(cfg.Region),
		TileSize: cfg.WMTS.TileSize,
		Root:     cfg.Output.Root,
		Location: loc,
		Log:      log,
	}, nil
}

func regionBound(r config.RegionConfig) orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.MinLon, r.MinLat},
		Max: orb.Point{r.MaxLon, r.MaxLat},
	}
}

// recordMetrics writes the textfile metrics when a path is configured.
// A metrics failure never changes the outcome of the run.
func recordMetrics(log *slog.Logger, path string, req model.MapRequest, res pipeline.Result, runErr error, elapsed time.Duration) {
	if path == "" {
		return
	}
	run := metrics.NewRun()
	run.Observe(metrics.Outcome{
		DataType: req.DataType.String(),
		Zoom:     int(req.Zoom),
		Success:  runErr == nil,
		Duration: elapsed,
		Tiles:    fetchedTiles(res, runErr),
		Bytes:    res.Bytes,
		Finished: time.Now(),
	})
	if err := run.WriteFile(path); err != nil {
		log.Warn("failed to write metrics", "path", path, "err", err)
		return
	}
	log.Debug("metrics written", "path", path)
}

// fetchedTiles is the tile count of a run that produced an image. Width
// stays zero until the map has been rendered.
func fetchedTiles(res pipeline.Result, runErr error) int {
	if runErr != nil && res.Width == 0 {
		return 0
	}
	return res.Tiles
}

func printRenderResult(w io.Writer, jsonOutput bool, req model.MapRequest, res pipeline.Result) error {
	if jsonOutput {
		return writeJSON(w, renderResultJSON{
			DataType: req.DataType.String(),
			Zoom:     int(req.Zoom),
			Time:     res.Time.Param(),
			Local:    res.Time.Display(),
			Path:     res.Path,
			Bytes:    res.Bytes,
			Width:    res.Width,
			Height:   res.Height,
			Tiles:    res.Tiles,
			Range:    res.Range,
			Legend:   res.Legend,
		})
	}

	_, err := fmt.Fprintf(w, "Saved %s (%dx%d px, %.2f MB, %d tiles, %s)\n",
		res.Path, res.Width, res.Height, float64(res.Bytes)/(1024*1024), res.Tiles, res.Time.Display())
	return err
}
