// Package pipeline runs one map request end to end:
//
//	resolve grid → fetch tiles → stitch → title → legend → write
//
// Every step runs in order on the calling goroutine except the tile
// download, which fans out inside wmts.Client.FetchTiles. A failure in any
// step before the write aborts the run and nothing is written; only the
// legend is best-effort.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/paulmach/orb"

	"github.com/shinji-kodama/nz-ocean-map/internal/annotate"
	"github.com/shinji-kodama/nz-ocean-map/internal/catalog"
	"github.com/shinji-kodama/nz-ocean-map/internal/grid"
	"github.com/shinji-kodama/nz-ocean-map/internal/legend"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
	"github.com/shinji-kodama/nz-ocean-map/internal/mosaic"
	"github.com/shinji-kodama/nz-ocean-map/internal/output"
	"github.com/shinji-kodama/nz-ocean-map/internal/wmts"
)

// Fetcher is the part of wmts.Client the pipeline needs.
type Fetcher interface {
	FetchTiles(ctx context.Context, layer catalog.Layer, coords []model.TileCoordinate, at wmts.TimeStep) ([]image.Image, error)
	FetchLegend(ctx context.Context, layer catalog.Layer) ([]byte, error)
}

// Runner holds everything that stays the same between requests.
type Runner struct {
	Fetcher  Fetcher
	Catalog  catalog.Catalog
	Matrix   grid.TileMatrixSet
	Region   orb.Bound
	TileSize int

	// Root is the directory default output paths are derived under.
	Root string

	// Location decides what "today" means. Now defaults to time.Now.
	Location *time.Location
	Now      func() time.Time

	// LegendPreview, when set, receives a terminal rendering of the
	// legend colours.
	LegendPreview io.Writer

	Log *slog.Logger
}

// Result describes a rendered map.
type Result struct {
	Path   string        `json:"path,omitempty"`
	Bytes  int64         `json:"bytes,omitempty"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Tiles  int           `json:"tiles"`
	Range  grid.Range    `json:"range"`
	Time   wmts.TimeStep `json:"-"`
	Legend bool          `json:"legend"`
}

// Run renders req and writes it to its output path.
func (r *Runner) Run(ctx context.Context, req model.MapRequest) (Result, error) {
	img, res, err := r.Render(ctx, req)
	if err != nil {
		return res, err
	}

	res.Path = output.Path(r.Root, req, res.Time)
	n, err := output.WritePNG(res.Path, img)
	if err != nil {
		return res, err
	}
	res.Bytes = n
	r.log().Info("map saved",
		"path", res.Path,
		"size", fmt.Sprintf("%dx%d", res.Width, res.Height),
		"bytes", n,
	)
	return res, nil
}

// Render produces the decorated map without writing it.
func (r *Runner) Render(ctx context.Context, req model.MapRequest) (*image.RGBA, Result, error) {
	log := r.log().With("type", req.DataType.String(), "zoom", int(req.Zoom))

	layer, err := r.Catalog.Lookup(req.DataType)
	if err != nil {
		return nil, Result{}, model.WrapCLIError(model.ExitConfigurationError, "layer catalog is incomplete", err)
	}
	interval, err := layer.Step()
	if err != nil {
		return nil, Result{}, model.WrapCLIError(model.ExitConfigurationError,
			fmt.Sprintf("layer %s has a bad interval", req.DataType), err)
	}

	rng, err := grid.Resolve(r.Matrix, r.Region, int(req.Zoom))
	if err != nil {
		return nil, Result{}, err
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	at := wmts.TimeFor(r.now(), req.DayOffset, interval, loc)
	res := Result{Range: rng, Time: at, Tiles: rng.Count()}
	log.Info("fetching tiles",
		"time", at.Display(),
		"range", rng.String(),
		"tiles", rng.Count(),
	)

	coords := rng.Coordinates()
	tiles, err := r.Fetcher.FetchTiles(ctx, layer, coords, at)
	if err != nil {
		return nil, res, err
	}
	indexed, err := mosaic.Index(coords, tiles)
	if err != nil {
		return nil, res, model.WrapCLIError(model.ExitGeneralError, "failed to index tiles", err)
	}
	img, err := mosaic.Stitch(rng, indexed, r.TileSize)
	if err != nil {
		// Tiles that decode but have the wrong shape mean the provider is
		// not serving the grid we asked for.
		return nil, res, model.WrapCLIError(model.ExitNetworkError, "unexpected tile from provider", err)
	}
	log.Debug("tiles stitched", "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	if req.ShowTitle {
		img = annotate.AddTitle(img, annotate.Title{Text: layer.Title, Time: at.Display()})
	}

	if req.ShowLegend {
		panel, err := r.legend(ctx, layer, img.Bounds().Dy())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, res, model.WrapCLIError(model.ExitGeneralError, "interrupted", ctxErr)
			}
			log.Warn("legend unavailable, saving map without it", "err", err)
		} else {
			img = annotate.AttachLegend(img, panel)
			res.Legend = true
		}
	}

	res.Width, res.Height = img.Bounds().Dx(), img.Bounds().Dy()
	return img, res, nil
}

func (r *Runner) legend(ctx context.Context, layer catalog.Layer, height int) (*image.RGBA, error) {
	data, err := r.Fetcher.FetchLegend(ctx, layer)
	if err != nil {
		return nil, err
	}
	ramp, err := legend.Parse(data)
	if err != nil {
		return nil, err
	}
	if r.LegendPreview != nil {
		if err := legend.Preview(r.LegendPreview, ramp); err != nil {
			r.log().Debug("legend preview failed", "err", err)
		}
	}
	return legend.Render(ramp, legend.Labels{
		Title:  layer.LegendTitle,
		Unit:   layer.Unit,
		Format: layer.FormatValue,
	}, height)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
