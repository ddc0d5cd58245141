// Package output decides where a rendered map goes and writes it there.
//
// Two layouts are supported under a configurable root directory:
//
//	latest/<type><suffix>.png                  live images, overwritten every run
//	archive/<YYYY-MM-DD>/<type>-<HHMM>.png     one file per data time
//
// The live layout is what a web page embeds. The archive layout is what a
// retention job prunes; both are keyed on New Zealand local time because
// that is the calendar the audience reads.
package output

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/shinji-kodama/nz-ocean-map/internal/model"
	"github.com/shinji-kodama/nz-ocean-map/internal/wmts"
)

const (
	liveDir    = "latest"
	archiveDir = "archive"
)

// DaySuffix is appended to the data type in live file names.
func DaySuffix(dayOffset int) string {
	switch dayOffset {
	case 0:
		return ""
	case 1:
		return "_tomorrow"
	case -1:
		return "_yesterday"
	default:
		return fmt.Sprintf("_d%+d", dayOffset)
	}
}

// Path returns where req is written. An explicit req.OutputPath is
// returned unchanged; otherwise the live or archive path under root is
// derived from the data type, the day offset and the data time.
//
// Parameters:
//   - root: the output root directory (output.root in the config)
//   - req: the validated map request
//   - at: the data time the map was rendered for
func Path(root string, req model.MapRequest, at wmts.TimeStep) string {
	if req.OutputPath != "" {
		return req.OutputPath
	}
	if req.Archive {
		local := at.Local
		return filepath.Join(root, archiveDir, local.Format("2006-01-02"),
			fmt.Sprintf("%s-%s.png", req.DataType, local.Format("1504")))
	}
	return filepath.Join(root, liveDir, fmt.Sprintf("%s%s.png", req.DataType, DaySuffix(req.DayOffset)))
}

// WritePNG encodes img to path and returns the number of bytes written.
//
// Parent directories are created as needed. The image is encoded into a
// temporary file in the destination directory and renamed over path, so
// readers only ever see the previous image or the complete new one. Every
// failure is returned as an IOError CLIError and leaves no temporary file
// behind.
func WritePNG(path string, img image.Image) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to create directory %s", dir), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to create temporary file in %s", dir), err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := png.Encode(w, img); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError, "failed to encode PNG", err)
	}
	if err := w.Flush(); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to write %s", tmpName), err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to stat %s", tmpName), err)
	}
	if err := tmp.Close(); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to close %s", tmpName), err)
	}
	// CreateTemp uses 0600; published images must be world-readable.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to set permissions on %s", tmpName), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, model.WrapCLIError(model.ExitIOError,
			fmt.Sprintf("failed to move image into place at %s", path), err)
	}
	committed = true
	return info.Size(), nil
}
