package model

import (
	"fmt"
	"strings"
)

// DataType identifies which ocean variable is rendered.
// Each value maps to one entry of the layer catalog.
type DataType string

const (
	// TypeTemperature is sea surface temperature (degrees C).
	TypeTemperature DataType = "temperature"

	// TypeAnomaly is the sea surface temperature anomaly against the
	// 1993-2016 climatology (degrees C).
	TypeAnomaly DataType = "anomaly"

	// TypeSalinity is sea surface salinity (PSU).
	TypeSalinity DataType = "salinity"

	// TypeCurrents is sea surface current velocity (m/s).
	TypeCurrents DataType = "currents"
)

// AllDataTypes lists every supported data type in display order.
var AllDataTypes = []DataType{TypeTemperature, TypeAnomaly, TypeSalinity, TypeCurrents}

// String returns the string representation of DataType.
func (d DataType) String() string {
	return string(d)
}

// IsValid checks whether the DataType value is one of the
// predefined data types.
func (d DataType) IsValid() bool {
	switch d {
	case TypeTemperature, TypeAnomaly, TypeSalinity, TypeCurrents:
		return true
	default:
		return false
	}
}

// ParseDataType converts a string to a DataType.
// Returns an error if the string does not match any valid type.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	if !dt.IsValid() {
		return "", fmt.Errorf("invalid data type: %q (valid: temperature, anomaly, salinity, currents)", s)
	}
	return dt, nil
}

// Zoom is a WMTS tile matrix identifier. Only the levels that give a
// sensible image size for the New Zealand region are accepted on the CLI:
//
//	5 → low    (~768 px wide)
//	6 → medium (~1280 px wide)
//	7 → high   (~2304 px wide)
type Zoom int

const (
	ZoomLow    Zoom = 5
	ZoomMedium Zoom = 6
	ZoomHigh   Zoom = 7

	// DefaultZoom is used when --zoom is not given.
	DefaultZoom = ZoomMedium
)

// AllZooms lists the supported zoom levels in ascending order.
var AllZooms = []Zoom{ZoomLow, ZoomMedium, ZoomHigh}

// IsValid reports whether z is one of the supported zoom levels.
func (z Zoom) IsValid() bool {
	switch z {
	case ZoomLow, ZoomMedium, ZoomHigh:
		return true
	default:
		return false
	}
}

// ParseZoom validates an integer zoom level.
func ParseZoom(n int) (Zoom, error) {
	z := Zoom(n)
	if !z.IsValid() {
		return 0, fmt.Errorf("invalid zoom level: %d (valid: 5, 6, 7)", n)
	}
	return z, nil
}

// MapRequest is the immutable description of one map to render.
// It is built from the parsed CLI options by NewMapRequest, which is the
// only place where option values are validated.
type MapRequest struct {
	// DataType selects the catalog layer.
	DataType DataType `json:"dataType"`

	// Zoom is the WMTS tile matrix to request.
	Zoom Zoom `json:"zoom"`

	// DayOffset shifts the data time in whole days relative to "now"
	// in New Zealand: 0 = today, 1 = tomorrow, -1 = yesterday.
	DayOffset int `json:"dayOffset"`

	// ShowLegend attaches the colour-scale panel.
	ShowLegend bool `json:"showLegend"`

	// ShowTitle adds the title banner.
	ShowTitle bool `json:"showTitle"`

	// OutputPath is the explicit output file. Empty means "derive a
	// default path" (see the output package).
	OutputPath string `json:"outputPath,omitempty"`

	// Archive selects the dated archive path instead of the live path
	// when OutputPath is empty.
	Archive bool `json:"archive"`
}

// maxDayOffset bounds --days. The provider keeps roughly two years of
// analysis and ten days of forecast; anything beyond is certainly a typo.
const maxDayOffset = 3650

// NewMapRequest validates the raw option values and returns a MapRequest.
// Any problem is reported as an InvalidOption CLIError so the caller can
// exit before touching the network.
func NewMapRequest(dataType string, zoom, dayOffset int, showLegend, showTitle bool, outputPath string, archive bool) (MapRequest, error) {
	dt, err := ParseDataType(dataType)
	if err != nil {
		return MapRequest{}, WrapCLIError(ExitInvalidOption, "invalid --type", err)
	}

	z, err := ParseZoom(zoom)
	if err != nil {
		return MapRequest{}, WrapCLIError(ExitInvalidOption, "invalid --zoom", err)
	}

	if dayOffset > maxDayOffset || dayOffset < -maxDayOffset {
		return MapRequest{}, NewCLIError(ExitInvalidOption,
			fmt.Sprintf("invalid --days: %d is outside ±%d", dayOffset, maxDayOffset))
	}

	outputPath = strings.TrimSpace(outputPath)
	if outputPath != "" && archive {
		return MapRequest{}, NewCLIError(ExitInvalidOption, "--output and --archive are mutually exclusive")
	}

	return MapRequest{
		DataType:   dt,
		Zoom:       z,
		DayOffset:  dayOffset,
		ShowLegend: showLegend,
		ShowTitle:  showTitle,
		OutputPath: outputPath,
		Archive:    archive,
	}, nil
}

// TileCoordinate identifies a single WMTS tile.
type TileCoordinate struct {
	Zoom   int `json:"zoom"`
	Column int `json:"column"`
	Row    int `json:"row"`
}

// String returns "z/row/col", the order WMTS KVP parameters are usually
// quoted in (TILEMATRIX, TILEROW, TILECOL).
func (c TileCoordinate) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.Row, c.Column)
}

// ExitCode defines the process exit codes of the CLI.
// Scheduler wrappers use these to tell a provider outage from a bad
// deployment.
type ExitCode int

const (
	// ExitSuccess indicates the map was rendered and written.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidOption indicates a bad flag value. Raised before any
	// network access.
	ExitInvalidOption ExitCode = 2

	// ExitNetworkError indicates a tile could not be fetched (transport
	// error, timeout, non-2xx status or undecodable body).
	ExitNetworkError ExitCode = 3

	// ExitIOError indicates the output file could not be written.
	ExitIOError ExitCode = 4

	// ExitConfigurationError indicates the bounding box / zoom / tile
	// matrix combination is impossible, or the configuration is invalid.
	ExitConfigurationError ExitCode = 5
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
