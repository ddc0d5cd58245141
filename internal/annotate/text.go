package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	// Black is the colour of titles and legend labels.
	Black = color.RGBA{0x00, 0x00, 0x00, 0xFF}

	// Grey is the colour of the time line under the title.
	Grey = color.RGBA{0x80, 0x80, 0x80, 0xFF}

	// White is the background of the banner, the gap and the legend panel.
	White = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
)

var (
	goFontOnce sync.Once
	goFont     *opentype.Font
	goFontErr  error

	faceMu    sync.Mutex
	faceCache = make(map[float64]font.Face)
)

// Face returns Go Regular at size points (72 DPI, so points are pixels).
// If the embedded font cannot be parsed, basicfont.Face7x13 is returned.
func Face(size float64) font.Face {
	goFontOnce.Do(func() {
		goFont, goFontErr = opentype.Parse(goregular.TTF)
	})
	if goFontErr != nil {
		return basicfont.Face7x13
	}

	faceMu.Lock()
	defer faceMu.Unlock()
	if f, ok := faceCache[size]; ok {
		return f
	}
	f, err := opentype.NewFace(goFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	faceCache[size] = f
	return f
}

// DrawText draws s with its top edge at y. font.Drawer positions text on
// the baseline, so the face ascent is added here.
func DrawText(dst draw.Image, face font.Face, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// DrawTextCentered draws s horizontally centred between x1 and x2.
func DrawTextCentered(dst draw.Image, face font.Face, x1, x2, y int, s string, c color.Color) {
	x := x1 + (x2-x1-TextWidth(face, s))/2
	DrawText(dst, face, x, y, s, c)
}

// TextWidth returns the advance of s in whole pixels.
func TextWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// FillRect paints r with c.
func FillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// StrokeRect draws a border of the given width inside r.
func StrokeRect(dst draw.Image, r image.Rectangle, c color.Color, width int) {
	if width <= 0 {
		width = 1
	}
	for i := 0; i < width; i++ {
		x1, y1, x2, y2 := r.Min.X+i, r.Min.Y+i, r.Max.X-i, r.Max.Y-i
		FillRect(dst, image.Rect(x1, y1, x2, y1+1), c)
		FillRect(dst, image.Rect(x1, y2-1, x2, y2), c)
		FillRect(dst, image.Rect(x1, y1, x1+1, y2), c)
		FillRect(dst, image.Rect(x2-1, y1, x2, y2), c)
	}
}
