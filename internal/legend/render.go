package legend

import (
	"fmt"
	"image"

	"github.com/shinji-kodama/nz-ocean-map/internal/annotate"
)

// Panel geometry, in pixels.
const (
	padding    = 40
	barWidth   = 60
	labelWidth = 120

	// PanelWidth is the width of every rendered panel.
	PanelWidth = padding + barWidth + padding + labelWidth + padding

	// barTop is where the gradient starts; the bar ends barTop above the
	// bottom edge.
	barTop = padding * 2

	// MinHeight is the shortest panel that still has a one-pixel bar.
	MinHeight = 2*barTop + 1

	titleSize = 18
	valueSize = 24
)

// Labels is the text drawn on a panel.
type Labels struct {
	// Title and Unit are centred above the bar.
	Title string
	Unit  string

	// Format renders the max, mid and min values.
	Format func(float64) string
}

// Render draws the legend panel at the given height: a white background,
// the gradient bar with a 2px black border, the centred title and unit,
// and the max/mid/min values beside the bar. Values are omitted when the
// labels carry no numbers.
func Render(r Ramp, labels Labels, height int) (*image.RGBA, error) {
	if height < MinHeight {
		return nil, fmt.Errorf("legend height %d is below the minimum of %d", height, MinHeight)
	}
	if len(r.Stops) == 0 {
		return nil, ErrNoGradient
	}

	img := image.NewRGBA(image.Rect(0, 0, PanelWidth, height))
	annotate.FillRect(img, img.Bounds(), annotate.White)

	barX := padding
	barBottom := height - barTop
	barHeight := barBottom - barTop
	for y := 0; y < barHeight; y++ {
		c := r.At(float64(y) / float64(barHeight))
		annotate.FillRect(img, image.Rect(barX, barTop+y, barX+barWidth, barTop+y+1), c)
	}
	annotate.StrokeRect(img, image.Rect(barX, barTop, barX+barWidth+1, barBottom+1), annotate.Black, 2)

	title := annotate.Face(titleSize)
	annotate.DrawTextCentered(img, title, 0, PanelWidth, padding/2, labels.Title, annotate.Black)
	if labels.Unit != "" {
		annotate.DrawTextCentered(img, title, 0, PanelWidth, padding/2+25, labels.Unit, annotate.Black)
	}

	lo, hi, ok := r.Range()
	if !ok {
		return img, nil
	}
	format := labels.Format
	if format == nil {
		format = func(v float64) string { return fmt.Sprintf("%.1f", v) }
	}

	value := annotate.Face(valueSize)
	labelX := barX + barWidth + padding
	midY := (barTop + barBottom) / 2
	annotate.DrawText(img, value, labelX, barTop-10, format(hi), annotate.Black)
	annotate.DrawText(img, value, labelX, midY-15, format((hi+lo)/2), annotate.Black)
	annotate.DrawText(img, value, labelX, barBottom-20, format(lo), annotate.Black)
	return img, nil
}
