// Package mosaic stitches fetched tiles into one raster.
package mosaic

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/shinji-kodama/nz-ocean-map/internal/grid"
	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

// Stitch draws every tile of r into a Cols·size × Rows·size image. Tile
// (col, row) lands at ((col-MinCol)·size, (row-MinRow)·size).
//
// The tile set must match the range exactly: a missing tile, a tile
// outside the range, or a tile that is not size×size is an error and no
// image is returned.
func Stitch(r grid.Range, tiles map[model.TileCoordinate]image.Image, size int) (*image.RGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", size)
	}
	for c := range tiles {
		if !r.Contains(c) {
			return nil, fmt.Errorf("tile %s is outside range %s", c, r)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, r.Cols()*size, r.Rows()*size))
	for _, c := range r.Coordinates() {
		tile, ok := tiles[c]
		if !ok || tile == nil {
			return nil, fmt.Errorf("tile %s is missing", c)
		}
		b := tile.Bounds()
		if b.Dx() != size || b.Dy() != size {
			return nil, fmt.Errorf("tile %s is %dx%d, expected %dx%d", c, b.Dx(), b.Dy(), size, size)
		}

		x := (c.Column - r.MinCol) * size
		y := (c.Row - r.MinRow) * size
		draw.Draw(out, image.Rect(x, y, x+size, y+size), tile, b.Min, draw.Src)
	}
	return out, nil
}

// Index pairs coordinates with the tiles fetched for them. coords and
// tiles must be parallel, which is what wmts.Client.FetchTiles returns.
func Index(coords []model.TileCoordinate, tiles []image.Image) (map[model.TileCoordinate]image.Image, error) {
	if len(coords) != len(tiles) {
		return nil, fmt.Errorf("%d coordinates but %d tiles", len(coords), len(tiles))
	}
	m := make(map[model.TileCoordinate]image.Image, len(coords))
	for i, c := range coords {
		m[c] = tiles[i]
	}
	return m, nil
}
