// Package wmts talks to the provider's WMTS key-value-pair endpoint.
//
// Only two operations are used: GetTile for the map tiles and GetLegend for
// the colour scale. There is no capabilities negotiation: layer
// identifiers come from the catalog package and the grid from the grid
// package.
package wmts

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shinji-kodama/nz-ocean-map/internal/catalog"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// maxLegendBytes bounds the legend response; real legends are a few KB.
const maxLegendBytes = 1 << 20

// Options configures a Client.
type Options struct {
	// Endpoint is the KVP base URL, without a query string.
	Endpoint string

	// TileMatrixSet is sent as TILEMATRIXSET.
	TileMatrixSet string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// Concurrency bounds the number of tile requests in flight.
	Concurrency int

	// UserAgent is sent on every request.
	UserAgent string

	// HTTPClient overrides the default client. Tests use it to point at
	// an httptest server.
	HTTPClient *http.Client
}

// Client fetches tiles and legends from one WMTS endpoint.
type Client struct {
	endpoint      string
	tileMatrixSet string
	timeout       time.Duration
	concurrency   int
	userAgent     string
	http          *http.Client
	log           *slog.Logger
}

// NewClient validates opts and returns a Client.
func NewClient(opts Options, log *slog.Logger) (*Client, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, model.WrapCLIError(model.ExitConfigurationError,
			fmt.Sprintf("invalid WMTS endpoint %q", opts.Endpoint), err)
	}

	c := &Client{
		endpoint:      opts.Endpoint,
		tileMatrixSet: opts.TileMatrixSet,
		timeout:       opts.Timeout,
		concurrency:   opts.Concurrency,
		userAgent:     opts.UserAgent,
		http:          opts.HTTPClient,
		log:           log,
	}
	if c.tileMatrixSet == "" {
		c.tileMatrixSet = "EPSG:4326"
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.concurrency < 1 {
		c.concurrency = 1
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c, nil
}

// TileURL builds the GetTile request for one tile.
func (c *Client) TileURL(layer catalog.Layer, coord model.TileCoordinate, at TimeStep) string {
	q := url.Values{}
	q.Set("SERVICE", "WMTS")
	q.Set("REQUEST", "GetTile")
	q.Set("VERSION", "1.0.0")
	q.Set("LAYER", layer.Layer)
	q.Set("STYLE", layer.Style)
	q.Set("TILEMATRIXSET", c.tileMatrixSet)
	q.Set("TILEMATRIX", strconv.Itoa(coord.Zoom))
	q.Set("TILEROW", strconv.Itoa(coord.Row))
	q.Set("TILECOL", strconv.Itoa(coord.Column))
	q.Set("FORMAT", "image/png")
	q.Set("TIME", at.Param())
	if layer.Elevation != "" {
		q.Set("ELEVATION", layer.Elevation)
	}
	return c.endpoint + "?" + q.Encode()
}

// LegendURL builds the GetLegend request for a layer's colour scale.
func (c *Client) LegendURL(layer catalog.Layer) string {
	q := url.Values{}
	q.Set("SERVICE", "WMTS")
	q.Set("REQUEST", "GetLegend")
	q.Set("LAYER", layer.Layer)
	q.Set("STYLE", layer.Style)
	q.Set("FORMAT", "image/svg+xml")
	return c.endpoint + "?" + q.Encode()
}

// FetchTile downloads and decodes one tile. Any failure to obtain a
// decodable image is reported as a NetworkError.
func (c *Client) FetchTile(ctx context.Context, layer catalog.Layer, coord model.TileCoordinate, at TimeStep) (image.Image, error) {
	body, err := c.get(ctx, c.TileURL(layer, coord, at))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitNetworkError,
			fmt.Sprintf("failed to fetch tile %s", coord), err)
	}
	defer func() { _ = body.Close() }()

	img, _, err := image.Decode(body)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitNetworkError,
			fmt.Sprintf("failed to decode tile %s", coord), err)
	}
	return img, nil
}

// FetchTiles downloads every coordinate with at most Concurrency requests
// in flight. The first failure cancels the outstanding requests and is
// returned; no partial result is returned alongside an error.
//
// The result slice is parallel to coords.
func (c *Client) FetchTiles(ctx context.Context, layer catalog.Layer, coords []model.TileCoordinate, at TimeStep) ([]image.Image, error) {
	tiles := make([]image.Image, len(coords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, coord := range coords {
		g.Go(func() error {
			start := time.Now()
			img, err := c.FetchTile(gctx, layer, coord, at)
			if err != nil {
				return err
			}
			c.log.Debug("tile fetched", "tile", coord.String(), "elapsed", time.Since(start))
			tiles[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiles, nil
}

// FetchLegend downloads the SVG colour scale of a layer.
func (c *Client) FetchLegend(ctx context.Context, layer catalog.Layer) ([]byte, error) {
	body, err := c.get(ctx, c.LegendURL(layer))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitNetworkError, "failed to fetch legend", err)
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(io.LimitReader(body, maxLegendBytes))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitNetworkError, "failed to read legend", err)
	}
	return data, nil
}

// get issues one GET with the per-request timeout and returns the body of
// a 2xx response. The body reader stays valid until it is closed; closing
// it also releases the timeout.
func (c *Client) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", c.timeout, err)
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		cancel()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(snippet)}
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return "HTTP " + e.Status
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
