// Package grid resolves a geographic bounding box into the rectangular set
// of WMTS tiles that covers it.
//
// Two tile matrix sets are supported:
//
//   - EPSG:4326: the geographic grid the Copernicus Marine WMTS advertises
//     by default. Zoom z has 2^(z+1) columns and 2^z rows of square tiles
//     180/2^z degrees wide, with the origin at (-180, 90).
//   - EPSG:3857: the usual slippy-map WebMercatorQuad, computed with
//     github.com/paulmach/orb/maptile.
//
// Coverage always rounds outward: a box edge inside a tile includes that
// tile, and a box edge lying exactly on a tile boundary does not pull in
// the neighbouring tile.
package grid

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// MaxZoom bounds the zoom levels either matrix set will resolve.
const MaxZoom = 24

// mercatorMaxLat is the latitude limit of WebMercatorQuad.
const mercatorMaxLat = 85.0511287798066

// TileMatrixSet converts longitude/latitude into fractional tile indices
// for one grid definition.
type TileMatrixSet interface {
	// Identifier is the WMTS TILEMATRIXSET value.
	Identifier() string

	// Dimensions returns the number of columns and rows at zoom z.
	Dimensions(z int) (cols, rows int)

	// Extent is the valid lon/lat area of the matrix set.
	Extent() orb.Bound

	// Fraction returns the fractional (column, row) of p at zoom z.
	// Rows grow southward.
	Fraction(p orb.Point, z int) (col, row float64)
}

// Geographic is the EPSG:4326 tile matrix set.
type Geographic struct{}

func (Geographic) Identifier() string { return "EPSG:4326" }

func (Geographic) Dimensions(z int) (int, int) {
	return 1 << (z + 1), 1 << z
}

func (Geographic) Extent() orb.Bound {
	return orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
}

func (Geographic) Fraction(p orb.Point, z int) (float64, float64) {
	span := 180 / float64(int(1)<<z)
	return (p.Lon() + 180) / span, (90 - p.Lat()) / span
}

// WebMercator is the EPSG:3857 WebMercatorQuad tile matrix set.
type WebMercator struct{}

func (WebMercator) Identifier() string { return "EPSG:3857" }

func (WebMercator) Dimensions(z int) (int, int) {
	n := 1 << z
	return n, n
}

func (WebMercator) Extent() orb.Bound {
	return orb.Bound{Min: orb.Point{-180, -mercatorMaxLat}, Max: orb.Point{180, mercatorMaxLat}}
}

func (WebMercator) Fraction(p orb.Point, z int) (float64, float64) {
	f := maptile.Fraction(p, maptile.Zoom(z))
	return f.X(), f.Y()
}

// ParseTileMatrixSet maps a TILEMATRIXSET identifier onto its
// implementation. "WebMercatorQuad" and "GoogleMapsCompatible" are accepted
// as aliases of EPSG:3857.
func ParseTileMatrixSet(id string) (TileMatrixSet, error) {
	switch strings.ToUpper(strings.TrimSpace(id)) {
	case "EPSG:4326", "CRS84":
		return Geographic{}, nil
	case "EPSG:3857", "WEBMERCATORQUAD", "GOOGLEMAPSCOMPATIBLE":
		return WebMercator{}, nil
	default:
		return nil, model.NewCLIError(model.ExitConfigurationError,
			fmt.Sprintf("unsupported tile matrix set %q (valid: EPSG:4326, EPSG:3857)", id))
	}
}

// Range is an inclusive rectangle of tiles at one zoom level.
type Range struct {
	Zoom   int `json:"zoom"`
	MinCol int `json:"minCol"`
	MaxCol int `json:"maxCol"`
	MinRow int `json:"minRow"`
	MaxRow int `json:"maxRow"`
}

// Cols returns the number of tile columns in the range.
func (r Range) Cols() int { return r.MaxCol - r.MinCol + 1 }

// Rows returns the number of tile rows in the range.
func (r Range) Rows() int { return r.MaxRow - r.MinRow + 1 }

// Count returns the number of tiles in the range.
func (r Range) Count() int { return r.Cols() * r.Rows() }

// Contains reports whether c lies inside the range.
func (r Range) Contains(c model.TileCoordinate) bool {
	return c.Zoom == r.Zoom &&
		c.Column >= r.MinCol && c.Column <= r.MaxCol &&
		c.Row >= r.MinRow && c.Row <= r.MaxRow
}

// Coordinates returns every tile of the range in row-major order
// (north to south, then west to east).
func (r Range) Coordinates() []model.TileCoordinate {
	coords := make([]model.TileCoordinate, 0, r.Count())
	for row := r.MinRow; row <= r.MaxRow; row++ {
		for col := r.MinCol; col <= r.MaxCol; col++ {
			coords = append(coords, model.TileCoordinate{Zoom: r.Zoom, Column: col, Row: row})
		}
	}
	return coords
}

// String renders the range the way log lines quote it.
func (r Range) String() string {
	return fmt.Sprintf("z%d rows %d-%d cols %d-%d (%d tiles)",
		r.Zoom, r.MinRow, r.MaxRow, r.MinCol, r.MaxCol, r.Count())
}

// Resolve computes the tile range covering box at zoom z.
//
// Returns a ConfigurationError CLIError when the box is empty or inverted,
// when any part of it lies outside the matrix set's extent, or when the
// zoom is out of range.
func Resolve(tms TileMatrixSet, box orb.Bound, z int) (Range, error) {
	if z < 0 || z > MaxZoom {
		return Range{}, model.NewCLIError(model.ExitConfigurationError,
			fmt.Sprintf("zoom %d is outside the tile matrix set (0-%d)", z, MaxZoom))
	}
	if box.IsEmpty() || box.Left() >= box.Right() || box.Bottom() >= box.Top() {
		return Range{}, model.NewCLIError(model.ExitConfigurationError,
			fmt.Sprintf("bounding box %v is empty or inverted", box))
	}
	ext := tms.Extent()
	if box.Left() < ext.Left() || box.Right() > ext.Right() || box.Bottom() < ext.Bottom() || box.Top() > ext.Top() {
		return Range{}, model.NewCLIError(model.ExitConfigurationError,
			fmt.Sprintf("bounding box %v lies outside the %s grid extent %v", box, tms.Identifier(), ext))
	}

	// North-west corner gives the smallest indices, south-east the largest.
	minColF, minRowF := tms.Fraction(orb.Point{box.Left(), box.Top()}, z)
	maxColF, maxRowF := tms.Fraction(orb.Point{box.Right(), box.Bottom()}, z)

	cols, rows := tms.Dimensions(z)
	r := Range{
		Zoom:   z,
		MinCol: clamp(int(math.Floor(minColF)), 0, cols-1),
		MinRow: clamp(int(math.Floor(minRowF)), 0, rows-1),
		MaxCol: clamp(int(math.Ceil(maxColF))-1, 0, cols-1),
		MaxRow: clamp(int(math.Ceil(maxRowF))-1, 0, rows-1),
	}

	// A box thinner than floating point noise can still invert after
	// rounding; widen to the containing tile.
	if r.MaxCol < r.MinCol {
		r.MaxCol = r.MinCol
	}
	if r.MaxRow < r.MinRow {
		r.MaxRow = r.MinRow
	}
	return r, nil
}

// TileBound returns the lon/lat bound of one tile. It is the inverse of
// Fraction for integer indices and is used to check coverage.
func TileBound(tms TileMatrixSet, c model.TileCoordinate) orb.Bound {
	switch tms.(type) {
	case WebMercator:
		t := maptile.New(uint32(c.Column), uint32(c.Row), maptile.Zoom(c.Zoom))
		return t.Bound()
	default:
		span := 180 / float64(int(1)<<c.Zoom)
		left := -180 + float64(c.Column)*span
		top := 90 - float64(c.Row)*span
		return orb.Bound{Min: orb.Point{left, top - span}, Max: orb.Point{left + span, top}}
	}
}

// Bound returns the lon/lat area covered by the whole range.
func (r Range) Bound(tms TileMatrixSet) orb.Bound {
	nw := TileBound(tms, model.TileCoordinate{Zoom: r.Zoom, Column: r.MinCol, Row: r.MinRow})
	se := TileBound(tms, model.TileCoordinate{Zoom: r.Zoom, Column: r.MaxCol, Row: r.MaxRow})
	return nw.Union(se)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
