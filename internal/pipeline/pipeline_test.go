package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/nz-ocean-map/internal/annotate"
	"github.com/shinji-kodama/nz-ocean-map/internal/catalog"
	"github.com/shinji-kodama/nz-ocean-map/internal/grid"
	"github.com/shinji-kodama/nz-ocean-map/internal/legend"
	"github.com/shinji-kodama/nz-ocean-map/internal/logging"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
	"github.com/shinji-kodama/nz-ocean-map/internal/wmts"
)

const tileSize = 64

const legendSVG = `<svg xmlns="http://www.w3.org/2000/svg">
<linearGradient id="g"><stop offset="0%" stop-color="rgb(200,0,0)"/><stop offset="100%" stop-color="rgb(0,0,200)"/></linearGradient>
<text y="10">30</text><text y="290">-2</text>
</svg>`

var nzBox = orb.Bound{Min: orb.Point{166.0, -46.4}, Max: orb.Point{178.5, -33.8}}

// fakeFetcher serves solid tiles coloured by coordinate.
type fakeFetcher struct {
	tileErr   error
	legendErr error
	legendSVG string
	size      int

	tileCalls   int
	legendCalls int
	lastTime    wmts.TimeStep
}

func (f *fakeFetcher) FetchTiles(_ context.Context, _ catalog.Layer, coords []model.TileCoordinate, at wmts.TimeStep) ([]image.Image, error) {
	f.tileCalls++
	f.lastTime = at
	if f.tileErr != nil {
		return nil, f.tileErr
	}
	size := f.size
	if size == 0 {
		size = tileSize
	}
	tiles := make([]image.Image, len(coords))
	for i, c := range coords {
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		annotate.FillRect(img, img.Bounds(), color.RGBA{R: uint8(c.Column), G: uint8(c.Row), B: 0x55, A: 0xFF})
		tiles[i] = img
	}
	return tiles, nil
}

func (f *fakeFetcher) FetchLegend(context.Context, catalog.Layer) ([]byte, error) {
	f.legendCalls++
	if f.legendErr != nil {
		return nil, f.legendErr
	}
	if f.legendSVG != "" {
		return []byte(f.legendSVG), nil
	}
	return []byte(legendSVG), nil
}

func newRunner(t *testing.T, f *fakeFetcher) *Runner {
	t.Helper()
	cat, err := catalog.Builtin()
	require.NoError(t, err)
	loc, err := wmts.NewZealand()
	require.NoError(t, err)

	return &Runner{
		Fetcher:  f,
		Catalog:  cat,
		Matrix:   grid.Geographic{},
		Region:   nzBox,
		TileSize: tileSize,
		Root:     t.TempDir(),
		Location: loc,
		Now:      func() time.Time { return time.Date(2025, 1, 15, 23, 30, 0, 0, time.UTC) },
		Log:      logging.Discard(),
	}
}

func request(t *testing.T, showLegend, showTitle bool) model.MapRequest {
	t.Helper()
	req, err := model.NewMapRequest("temperature", 6, 0, showLegend, showTitle, "", false)
	require.NoError(t, err)
	return req
}

func TestRun_WritesLiveImage(t *testing.T) {
	f := &fakeFetcher{}
	r := newRunner(t, f)

	res, err := r.Run(context.Background(), request(t, true, true))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(r.Root, "latest", "temperature.png"), res.Path)
	assert.Equal(t, 25, res.Tiles)
	assert.True(t, res.Legend)
	assert.Equal(t, 5*tileSize+annotate.LegendGap+legend.PanelWidth, res.Width)
	assert.Equal(t, 5*tileSize+annotate.TitleHeight, res.Height)
	assert.Equal(t, "2025-01-15T18:00:00.000Z", f.lastTime.Param())

	info, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), res.Bytes)
}

// TestRun_FetchFailureWritesNothing verifies a failed tile aborts before
// the writer runs.
func TestRun_FetchFailureWritesNothing(t *testing.T) {
	f := &fakeFetcher{tileErr: model.NewCLIError(model.ExitNetworkError, "failed to fetch tile 6/44/123")}
	r := newRunner(t, f)

	_, err := r.Run(context.Background(), request(t, true, true))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitNetworkError, cliErr.Code)
	assert.Zero(t, f.legendCalls)

	entries, err := os.ReadDir(r.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_WrongTileSize(t *testing.T) {
	f := &fakeFetcher{size: tileSize / 2}
	r := newRunner(t, f)

	_, err := r.Run(context.Background(), request(t, false, false))

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitNetworkError, cliErr.Code)
}

func TestRun_ImpossibleRegion(t *testing.T) {
	f := &fakeFetcher{}
	r := newRunner(t, f)
	r.Region = orb.Bound{Min: orb.Point{170, -40}, Max: orb.Point{190, -30}}

	_, err := r.Run(context.Background(), request(t, true, true))

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigurationError, cliErr.Code)
	assert.Zero(t, f.tileCalls)
}

// TestRender_DecorationsAreAdditive renders the same request with every
// combination of title and legend and checks the map pixels match.
func TestRender_DecorationsAreAdditive(t *testing.T) {
	plain, _, err := newRunner(t, &fakeFetcher{}).Render(context.Background(), request(t, false, false))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 5*tileSize, 5*tileSize), plain.Bounds())

	for _, tc := range []struct {
		name          string
		legend, title bool
	}{
		{"title", false, true},
		{"legend", true, false},
		{"both", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img, res, err := newRunner(t, &fakeFetcher{}).Render(context.Background(), request(t, tc.legend, tc.title))
			require.NoError(t, err)
			assert.Equal(t, tc.legend, res.Legend)

			off := annotate.MapOffset(tc.title)
			b := plain.Bounds()
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					if img.RGBAAt(x+off.X, y+off.Y) != plain.RGBAAt(x, y) {
						t.Fatalf("map pixel (%d,%d) differs", x, y)
					}
				}
			}
		})
	}
}

// TestRender_LegendFailureIsNotFatal keeps the map when the legend cannot
// be fetched or parsed.
func TestRender_LegendFailureIsNotFatal(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeFetcher
	}{
		{"fetch fails", &fakeFetcher{legendErr: errors.New("HTTP 503")}},
		{"no gradient", &fakeFetcher{legendSVG: `<svg><text y="1">5</text></svg>`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, res, err := newRunner(t, tt.f).Render(context.Background(), request(t, true, false))
			require.NoError(t, err)
			assert.False(t, res.Legend)
			assert.Equal(t, 5*tileSize, img.Bounds().Dx())
			assert.Equal(t, 1, tt.f.legendCalls)
		})
	}
}

func TestRender_LegendPreview(t *testing.T) {
	var buf bytes.Buffer
	r := newRunner(t, &fakeFetcher{})
	r.LegendPreview = &buf

	_, _, err := r.Render(context.Background(), request(t, true, false))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Legend Preview:")
	assert.Contains(t, buf.String(), "Range: 30 to -2")
}

func TestRun_ArchivePath(t *testing.T) {
	r := newRunner(t, &fakeFetcher{})
	req, err := model.NewMapRequest("anomaly", 5, 1, false, true, "", true)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), req)
	require.NoError(t, err)

	// The anomaly layer is daily: tomorrow is 2025-01-16T00:00Z, 13:00 NZDT.
	assert.Equal(t, filepath.Join(r.Root, "archive", "2025-01-16", "anomaly-1300.png"), res.Path)
	assert.FileExists(t, res.Path)
}
