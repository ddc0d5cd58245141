package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

const testTileSize = 64

const testLegend = `<svg xmlns="http://www.w3.org/2000/svg">
<linearGradient id="g"><stop offset="0%" stop-color="rgb(255,0,0)"/><stop offset="100%" stop-color="rgb(0,0,255)"/></linearGradient>
<text y="5">30</text><text y="295">-2</text>
</svg>`

// provider is a fake WMTS endpoint.
type provider struct {
	srv        *httptest.Server
	tileHits   atomic.Int32
	legendHits atomic.Int32
	failTiles  bool
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{}

	tile := image.NewRGBA(image.Rect(0, 0, testTileSize, testTileSize))
	for i := range tile.Pix {
		tile.Pix[i] = 0x80
	}
	tile.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, tile))
	tilePNG := buf.Bytes()

	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("REQUEST") {
		case "GetTile":
			p.tileHits.Add(1)
			if p.failTiles {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(tilePNG)
		case "GetLegend":
			p.legendHits.Add(1)
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte(testLegend))
		default:
			http.Error(w, "bad request", http.StatusBadRequest)
		}
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *provider) hits() int32 {
	return p.tileHits.Load() + p.legendHits.Load()
}

// isolate points configuration at temp directories and p, and returns
// the output root.
func isolate(t *testing.T, p *provider) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	root := t.TempDir()
	t.Setenv("NZMAP_OUTPUT_ROOT", root)
	t.Setenv("NZMAP_WMTS_TILE_SIZE", "64")
	t.Setenv("NZMAP_LOG_LEVEL", "error")
	if p != nil {
		t.Setenv("NZMAP_WMTS_ENDPOINT", p.srv.URL+"/teroWmts")
	} else {
		t.Setenv("NZMAP_WMTS_ENDPOINT", "http://127.0.0.1:1/teroWmts")
	}
	return root
}

// run executes the CLI with args and returns exit code, stdout, stderr.
func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	code := Execute(context.Background(), cmd)
	return code, stdout.String(), stderr.String()
}

// TestInvalidOptions verifies that bad options exit with code 2 before any
// request reaches the provider.
func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown type", []string{"--type", "chlorophyll"}, "invalid --type"},
		{"unsupported zoom", []string{"--zoom", "9"}, "invalid --zoom"},
		{"non-numeric zoom", []string{"-z", "high"}, "invalid option"},
		{"unknown flag", []string{"--colour", "red"}, "invalid option"},
		{"output with archive", []string{"-o", "x.png", "--archive"}, "mutually exclusive"},
		{"positional argument", []string{"temperature"}, "unexpected argument"},
		{"absurd day offset", []string{"--days", "100000"}, "invalid --days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t)
			isolate(t, p)

			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, int(model.ExitInvalidOption), code)
			assert.Contains(t, stderr, tt.want)
			assert.Zero(t, p.hits(), "no request may be sent")
		})
	}
}

func TestRender_Success(t *testing.T) {
	p := newProvider(t)
	root := isolate(t, p)

	code, stdout, stderr := run(t, "--type", "salinity", "--zoom", "5", "--json")
	require.Equal(t, 0, code, stderr)

	var out struct {
		DataType string `json:"dataType"`
		Path     string `json:"path"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Tiles    int    `json:"tiles"`
		Legend   bool   `json:"legend"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))

	assert.Equal(t, "salinity", out.DataType)
	assert.Equal(t, filepath.Join(root, "latest", "salinity.png"), out.Path)
	assert.Equal(t, 9, out.Tiles)
	assert.True(t, out.Legend)
	assert.Equal(t, 3*testTileSize+60, out.Height)
	assert.Equal(t, int32(9), p.tileHits.Load())
	assert.Equal(t, int32(1), p.legendHits.Load())

	f, err := os.Open(out.Path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, out.Width, img.Bounds().Dx())
	assert.Equal(t, out.Height, img.Bounds().Dy())
}

func TestRender_NoDecorations(t *testing.T) {
	p := newProvider(t)
	root := isolate(t, p)

	code, stdout, stderr := run(t, "-z", "5", "-d", "1", "--no-legend", "--no-title")
	require.Equal(t, 0, code, stderr)

	path := filepath.Join(root, "latest", "temperature_tomorrow.png")
	assert.Contains(t, stdout, "Saved "+path)
	assert.Zero(t, p.legendHits.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3*testTileSize, cfg.Width)
	assert.Equal(t, 3*testTileSize, cfg.Height)
}

// TestRender_NetworkError verifies a failing tile exits 3 and writes
// nothing.
func TestRender_NetworkError(t *testing.T) {
	p := newProvider(t)
	p.failTiles = true
	root := isolate(t, p)

	code, _, stderr := run(t, "-z", "5", "--json")
	assert.Equal(t, int(model.ExitNetworkError), code)

	var out struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Detail  string `json:"detail"`
		} `json:"error"`
	}
	// Logging is at error level, so the JSON error is the last thing written.
	idx := strings.Index(stderr, "{\n")
	require.GreaterOrEqual(t, idx, 0, stderr)
	require.NoError(t, json.Unmarshal([]byte(stderr[idx:]), &out))
	assert.Equal(t, 3, out.Error.Code)
	assert.Contains(t, out.Error.Message, "failed to fetch tile")
	assert.Contains(t, out.Error.Detail, "404")

	_, err := os.Stat(filepath.Join(root, "latest"))
	assert.True(t, os.IsNotExist(err), "nothing is written")
	assert.Zero(t, p.legendHits.Load())
}

func TestRender_IOError(t *testing.T) {
	p := newProvider(t)
	isolate(t, p)

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	code, _, stderr := run(t, "-z", "5", "--no-legend", "-o", filepath.Join(blocker, "map.png"))
	assert.Equal(t, int(model.ExitIOError), code)
	assert.Contains(t, stderr, "Error: failed to create directory")
}

func TestRender_ConfigurationError(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad concurrency", "NZMAP_WMTS_CONCURRENCY", "0"},
		{"unknown tile matrix set", "NZMAP_WMTS_TILE_MATRIX_SET", "EPSG:2193"},
		{"region outside grid", "NZMAP_REGION_MAX_LON", "190"},
		{"missing catalog override", "NZMAP_CATALOG_FILE", "/nonexistent/layers.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProvider(t)
			isolate(t, p)
			t.Setenv(tt.key, tt.value)

			code, _, _ := run(t, "-z", "5")
			assert.Equal(t, int(model.ExitConfigurationError), code)
			assert.Zero(t, p.tileHits.Load())
		})
	}
}

// TestRender_Metrics verifies metrics are written for failed runs too.
func TestRender_Metrics(t *testing.T) {
	p := newProvider(t)
	p.failTiles = true
	isolate(t, p)
	path := filepath.Join(t.TempDir(), "nzmap.prom")

	code, _, _ := run(t, "-t", "currents", "-z", "6", "--metrics-file", path)
	assert.Equal(t, int(model.ExitNetworkError), code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `nzmap_run_success{data_type="currents",zoom="6"} 0`)
	assert.Contains(t, string(data), `nzmap_tiles_fetched{data_type="currents",zoom="6"} 0`)
}

func TestRender_Archive(t *testing.T) {
	p := newProvider(t)
	root := isolate(t, p)

	code, stdout, stderr := run(t, "-t", "anomaly", "-z", "5", "--archive", "--json")
	require.Equal(t, 0, code, stderr)

	var out struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	rel, err := filepath.Rel(root, out.Path)
	require.NoError(t, err)
	assert.Regexp(t, `^archive/\d{4}-\d{2}-\d{2}/anomaly-\d{4}\.png$`, filepath.ToSlash(rel))
	assert.FileExists(t, out.Path)
}

func TestLayersCommand(t *testing.T) {
	isolate(t, nil)

	code, stdout, _ := run(t, "layers", "--json")
	require.Equal(t, 0, code)

	var out struct {
		Layers []struct {
			Type     string `json:"type"`
			Layer    string `json:"layer"`
			Interval string `json:"interval"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Layers, 4)
	assert.Equal(t, "temperature", out.Layers[0].Type)
	assert.Equal(t, "anomaly", out.Layers[1].Type)
	assert.Equal(t, "24h", out.Layers[1].Interval)
	assert.Contains(t, out.Layers[3].Layer, "sea_water_velocity")

	code, stdout, _ = run(t, "layers")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "TYPE")
	assert.Contains(t, stdout, "Sea Surface Salinity")
}

func TestGridCommand(t *testing.T) {
	isolate(t, nil)

	code, stdout, _ := run(t, "grid", "--zoom", "5")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "EPSG:4326")
	assert.Contains(t, stdout, "22-24")
	assert.Contains(t, stdout, "61-63")
	assert.Contains(t, stdout, "192x192")

	code, stdout, _ = run(t, "grid", "--json")
	require.Equal(t, 0, code)
	var out struct {
		Ranges []struct {
			Zoom   int `json:"zoom"`
			MinRow int `json:"minRow"`
			MaxCol int `json:"maxCol"`
			Tiles  int `json:"tiles"`
		} `json:"ranges"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Ranges, 3)
	assert.Equal(t, 7, out.Ranges[2].Zoom)
	assert.Equal(t, 88, out.Ranges[2].MinRow)
	assert.Equal(t, 254, out.Ranges[2].MaxCol)
	assert.Equal(t, 81, out.Ranges[2].Tiles)

	code, _, _ = run(t, "grid", "--zoom", "4")
	assert.Equal(t, int(model.ExitInvalidOption), code)
}
