// Package legend turns the provider's GetLegend SVG into a colour-scale
// panel drawn beside the map.
//
// The provider legend is a vertical linearGradient with a handful of text
// labels. Only two things are read from it: the gradient stops
// (stop-color="rgb(r,g,b)" plus a percentage offset) and the numeric label
// values. The panel itself is redrawn at the height of the map so the
// scale lines up with it.
package legend

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"image/color"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoGradient is returned when the SVG has no usable gradient stops.
var ErrNoGradient = errors.New("legend has no gradient stops")

var (
	rgbPattern    = regexp.MustCompile(`^rgb\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	numberPattern = regexp.MustCompile(`[-\d.]+`)
)

// Stop is one colour of the gradient at Offset percent (0 top, 100 bottom).
type Stop struct {
	Offset float64
	Color  color.RGBA
}

// Label is one text element of the legend.
type Label struct {
	Y    float64
	Text string
}

// Ramp is the parsed legend. Stops are sorted by offset and labels by y.
type Ramp struct {
	Stops  []Stop
	Labels []Label
}

// Parse reads a GetLegend SVG. Elements are matched by local name, so the
// document may or may not declare the SVG namespace.
func Parse(data []byte) (Ramp, error) {
	var (
		ramp       Ramp
		inGradient int
		inText     int
		textY      float64
		text       strings.Builder
	)

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Ramp{}, fmt.Errorf("parse legend svg: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "linearGradient":
				inGradient++
			case "stop":
				if inGradient > 0 {
					if s, ok := parseStop(t); ok {
						ramp.Stops = append(ramp.Stops, s)
					}
				}
			case "text":
				if inText == 0 {
					textY, _ = strconv.ParseFloat(attr(t, "y"), 64)
					text.Reset()
				}
				inText++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "linearGradient":
				inGradient--
			case "text":
				inText--
				if inText == 0 {
					if s := strings.TrimSpace(text.String()); s != "" {
						ramp.Labels = append(ramp.Labels, Label{Y: textY, Text: s})
					}
				}
			}
		case xml.CharData:
			if inText > 0 {
				text.Write(t)
			}
		}
	}

	if len(ramp.Stops) == 0 {
		return Ramp{}, ErrNoGradient
	}
	sort.SliceStable(ramp.Stops, func(i, j int) bool { return ramp.Stops[i].Offset < ramp.Stops[j].Offset })
	sort.SliceStable(ramp.Labels, func(i, j int) bool { return ramp.Labels[i].Y < ramp.Labels[j].Y })
	return ramp, nil
}

func parseStop(el xml.StartElement) (Stop, bool) {
	colour := attr(el, "stop-color")
	if colour == "" {
		// Some renderers put it in a style attribute instead.
		for _, decl := range strings.Split(attr(el, "style"), ";") {
			k, v, ok := strings.Cut(decl, ":")
			if ok && strings.TrimSpace(k) == "stop-color" {
				colour = strings.TrimSpace(v)
			}
		}
	}
	m := rgbPattern.FindStringSubmatch(strings.TrimSpace(colour))
	if m == nil {
		return Stop{}, false
	}

	var rgb [3]uint8
	for i := range rgb {
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > 255 {
			return Stop{}, false
		}
		rgb[i] = uint8(n)
	}

	offset := 0.0
	if raw := strings.TrimSpace(attr(el, "offset")); raw != "" {
		pct := strings.HasSuffix(raw, "%")
		v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
		if err != nil {
			return Stop{}, false
		}
		if !pct {
			v *= 100
		}
		offset = v
	}

	return Stop{
		Offset: offset,
		Color:  color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 0xFF},
	}, true
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// At returns the interpolated colour at ratio (0 top, 1 bottom). Ratios
// outside the stop range take the nearest end colour.
func (r Ramp) At(ratio float64) color.RGBA {
	if len(r.Stops) == 0 {
		return color.RGBA{A: 0xFF}
	}
	pct := ratio * 100
	first, last := r.Stops[0], r.Stops[len(r.Stops)-1]
	if pct <= first.Offset {
		return first.Color
	}
	if pct >= last.Offset {
		return last.Color
	}

	for i := 0; i < len(r.Stops)-1; i++ {
		a, b := r.Stops[i], r.Stops[i+1]
		if pct < a.Offset || pct > b.Offset {
			continue
		}
		if b.Offset == a.Offset {
			return a.Color
		}
		t := (pct - a.Offset) / (b.Offset - a.Offset)
		return color.RGBA{
			R: lerp(a.Color.R, b.Color.R, t),
			G: lerp(a.Color.G, b.Color.G, t),
			B: lerp(a.Color.B, b.Color.B, t),
			A: 0xFF,
		}
	}
	return last.Color
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}

// Range returns the smallest and largest number found in the labels.
// ok is false when no label contains a number.
func (r Ramp) Range() (lo, hi float64, ok bool) {
	for _, l := range r.Labels {
		m := numberPattern.FindString(l.Text)
		if m == "" {
			continue
		}
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi, ok
}
