// Package metrics records the outcome of one run in the Prometheus
// textfile-collector format, for node_exporter to pick up between runs.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nzmap"

var labels = []string{"data_type", "zoom"}

// Run holds the gauges of a single invocation. Each Run owns its registry,
// so nothing is shared with the process-wide default registry.
type Run struct {
	reg *prometheus.Registry

	success      *prometheus.GaugeVec
	duration     *prometheus.GaugeVec
	tilesFetched *prometheus.GaugeVec
	outputBytes  *prometheus.GaugeVec
	lastRun      *prometheus.GaugeVec
}

// NewRun creates the gauges on a fresh registry.
func NewRun() *Run {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Run{
		reg: reg,
		success: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 if the last run wrote its map, 0 otherwise",
		}, labels),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of the last run",
		}, labels),
		tilesFetched: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tiles_fetched",
			Help:      "Tiles downloaded by the last run",
		}, labels),
		outputBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of the PNG written by the last run",
		}, labels),
		lastRun: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}, labels),
	}
}

// Outcome is what a run reports.
type Outcome struct {
	DataType string
	Zoom     int
	Success  bool
	Duration time.Duration
	Tiles    int
	Bytes    int64
	Finished time.Time
}

// Observe sets every gauge from o.
func (r *Run) Observe(o Outcome) {
	lv := prometheus.Labels{"data_type": o.DataType, "zoom": strconv.Itoa(o.Zoom)}

	ok := 0.0
	if o.Success {
		ok = 1
	}
	r.success.With(lv).Set(ok)
	r.duration.With(lv).Set(o.Duration.Seconds())
	r.tilesFetched.With(lv).Set(float64(o.Tiles))
	r.outputBytes.With(lv).Set(float64(o.Bytes))
	r.lastRun.With(lv).Set(float64(o.Finished.Unix()))
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.reg
}

// WriteFile writes the gauges to path. The file is written to a temporary
// name and renamed, which is what the textfile collector requires.
func (r *Run) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
