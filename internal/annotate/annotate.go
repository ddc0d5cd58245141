// Package annotate adds the cartographic decorations to a composited map.
//
// Every operation returns a new, larger image and copies the input into it
// unchanged: the title banner grows the image upward, the legend panel
// grows it to the right. Map pixels are never painted over, so a map with
// decorations contains the undecorated map verbatim at MapOffset.
package annotate

import (
	"fmt"
	"image"
	"image/draw"
)

const (
	// TitleHeight is the height of the white banner above the map.
	TitleHeight = 60

	// LegendGap is the white gap between the map and the legend panel.
	LegendGap = 20

	titleSize = 24
	timeSize  = 14
)

// Title is the text of the banner.
type Title struct {
	// Text is the layer's display name.
	Text string

	// Time is the local data time, shown as "Time: <Time>".
	Time string
}

// AddTitle returns a copy of src with a TitleHeight banner on top.
func AddTitle(src image.Image, t Title) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+TitleHeight))
	FillRect(dst, dst.Bounds(), White)
	draw.Draw(dst, image.Rect(0, TitleHeight, b.Dx(), b.Dy()+TitleHeight), src, b.Min, draw.Src)

	// Text is clipped to the banner so a long title never reaches the map.
	banner := dst.SubImage(image.Rect(0, 0, b.Dx(), TitleHeight)).(*image.RGBA)
	DrawText(banner, Face(titleSize), 10, 10, t.Text, Black)
	DrawText(banner, Face(timeSize), 10, 38, fmt.Sprintf("Time: %s", t.Time), Grey)
	return dst
}

// AttachLegend returns a copy of src with panel placed LegendGap pixels to
// its right. The result is as tall as the taller of the two.
func AttachLegend(src, panel image.Image) *image.RGBA {
	sb, pb := src.Bounds(), panel.Bounds()
	height := max(sb.Dy(), pb.Dy())
	dst := image.NewRGBA(image.Rect(0, 0, sb.Dx()+LegendGap+pb.Dx(), height))
	FillRect(dst, dst.Bounds(), White)
	draw.Draw(dst, image.Rect(0, 0, sb.Dx(), sb.Dy()), src, sb.Min, draw.Src)

	x := sb.Dx() + LegendGap
	draw.Draw(dst, image.Rect(x, 0, x+pb.Dx(), pb.Dy()), panel, pb.Min, draw.Src)
	return dst
}

// MapOffset is where the undecorated map starts inside a decorated image.
func MapOffset(withTitle bool) image.Point {
	if withTitle {
		return image.Pt(0, TitleHeight)
	}
	return image.Point{}
}
