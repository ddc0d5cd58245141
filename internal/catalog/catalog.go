// Package catalog maps each model.DataType onto a WMTS layer definition.
//
// The built-in catalog is embedded from layers.yaml. Operators can replace
// individual fields of individual entries (for example when Copernicus
// publishes a new dataset version) through an override file. Override files
// may be YAML or JSON with comments; JSONC is handled with
// github.com/tidwall/jsonc, which strips comments and trailing commas before
// the standard encoding/json decoder sees the bytes.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/nz-ocean-map/internal/model"
)

//go:embed layers.yaml
var builtinYAML []byte

// Layer describes how one data type is requested from the provider and
// how it is labelled on the rendered map.
type Layer struct {
	// Layer is the WMTS LAYER identifier (product/dataset/variable).
	Layer string `yaml:"layer" json:"layer"`

	// Style is the WMTS STYLE, which selects the colour map.
	Style string `yaml:"style" json:"style"`

	// Elevation is the ELEVATION dimension value (metres, negative down).
	// Empty for 2D datasets such as the anomaly product.
	Elevation string `yaml:"elevation,omitempty" json:"elevation,omitempty"`

	// Title is the human-readable name drawn in the title banner.
	Title string `yaml:"title" json:"title"`

	// LegendTitle and Unit are drawn above the colour bar.
	LegendTitle string `yaml:"legend_title" json:"legendTitle"`
	Unit        string `yaml:"unit" json:"unit"`

	// LabelFormat is a fmt verb string applied to legend values.
	LabelFormat string `yaml:"label_format" json:"labelFormat"`

	// Interval is the dataset time step ("6h" for PT6H products, "24h"
	// for P1D products). Request times are floored to it.
	Interval string `yaml:"interval" json:"interval"`
}

// Step parses Interval.
func (l Layer) Step() (time.Duration, error) {
	d, err := time.ParseDuration(l.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", l.Interval, err)
	}
	if d <= 0 || d > 24*time.Hour || (24*time.Hour)%d != 0 {
		return 0, fmt.Errorf("invalid interval %q: must divide 24h", l.Interval)
	}
	return d, nil
}

// FormatValue renders a legend value with LabelFormat.
func (l Layer) FormatValue(v float64) string {
	format := l.LabelFormat
	if format == "" {
		format = "%.1f"
	}
	return fmt.Sprintf(format, v)
}

// Validate checks that the fields required to build a request are present.
func (l Layer) Validate() error {
	if l.Layer == "" {
		return fmt.Errorf("layer identifier must not be empty")
	}
	if l.Style == "" {
		return fmt.Errorf("style must not be empty")
	}
	if _, err := l.Step(); err != nil {
		return err
	}
	return nil
}

// Catalog is the full set of layers keyed by data type.
type Catalog map[model.DataType]Layer

// file is the on-disk shape shared by the YAML and JSON encodings.
type file struct {
	Layers map[string]Layer `yaml:"layers" json:"layers"`
}

// Builtin returns a fresh copy of the embedded catalog.
func Builtin() (Catalog, error) {
	var f file
	if err := yaml.Unmarshal(builtinYAML, &f); err != nil {
		return nil, fmt.Errorf("parse built-in catalog: %w", err)
	}
	return fromFile(f, "built-in catalog")
}

// Load returns the built-in catalog with the entries of overridePath merged
// on top. An empty overridePath returns the built-in catalog unchanged.
func Load(overridePath string) (Catalog, error) {
	cat, err := Builtin()
	if err != nil {
		return nil, err
	}
	if overridePath == "" {
		return cat, nil
	}

	override, err := LoadFile(overridePath)
	if err != nil {
		return nil, err
	}
	cat.Merge(override)

	for dt, l := range cat {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %q after applying %s: %w", dt, overridePath, err)
		}
	}
	return cat, nil
}

// LoadFile parses a catalog file. The encoding is chosen by extension:
// .yaml/.yml use yaml.v3, .json/.jsonc are passed through jsonc first.
// Entries in a file may be partial; they are validated after merging.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var f file
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog file extension %q (use .yaml, .yml, .json or .jsonc)", ext)
	}

	cat := make(Catalog, len(f.Layers))
	for key, l := range f.Layers {
		dt, err := model.ParseDataType(key)
		if err != nil {
			return nil, fmt.Errorf("catalog file %s: %w", path, err)
		}
		cat[dt] = l
	}
	return cat, nil
}

func fromFile(f file, source string) (Catalog, error) {
	cat := make(Catalog, len(f.Layers))
	for key, l := range f.Layers {
		dt, err := model.ParseDataType(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("%s entry %q: %w", source, key, err)
		}
		cat[dt] = l
	}
	for _, dt := range model.AllDataTypes {
		if _, ok := cat[dt]; !ok {
			return nil, fmt.Errorf("%s has no entry for %q", source, dt)
		}
	}
	return cat, nil
}

// Merge copies every non-empty field of other into c.
func (c Catalog) Merge(other Catalog) {
	for dt, o := range other {
		l := c[dt]
		if o.Layer != "" {
			l.Layer = o.Layer
		}
		if o.Style != "" {
			l.Style = o.Style
		}
		if o.Elevation != "" {
			l.Elevation = o.Elevation
		}
		if o.Title != "" {
			l.Title = o.Title
		}
		if o.LegendTitle != "" {
			l.LegendTitle = o.LegendTitle
		}
		if o.Unit != "" {
			l.Unit = o.Unit
		}
		if o.LabelFormat != "" {
			l.LabelFormat = o.LabelFormat
		}
		if o.Interval != "" {
			l.Interval = o.Interval
		}
		c[dt] = l
	}
}

// Lookup returns the layer for dt.
func (c Catalog) Lookup(dt model.DataType) (Layer, error) {
	l, ok := c[dt]
	if !ok {
		return Layer{}, fmt.Errorf("no catalog entry for data type %q", dt)
	}
	return l, nil
}

// Types returns the catalog keys in model.AllDataTypes order.
func (c Catalog) Types() []model.DataType {
	types := make([]model.DataType, 0, len(c))
	for dt := range c {
		types = append(types, dt)
	}
	order := make(map[model.DataType]int, len(model.AllDataTypes))
	for i, dt := range model.AllDataTypes {
		order[dt] = i
	}
	sort.Slice(types, func(i, j int) bool { return order[types[i]] < order[types[j]] })
	return types
}
