package legend

import (
	"fmt"
	"io"
	"strings"
)

// maxPreviewBars caps the number of colour swatches printed.
const maxPreviewBars = 20

// Preview prints the ramp to a 24-bit colour terminal: up to 20 evenly
// sampled stops as background-coloured swatches with their rgb values,
// followed by the first and last label.
func Preview(w io.Writer, r Ramp) error {
	if len(r.Stops) == 0 {
		return nil
	}

	rule := "  " + strings.Repeat("─", 40)
	var b strings.Builder
	b.WriteString("\n  Legend Preview:\n")
	b.WriteString(rule + "\n")

	n := min(maxPreviewBars, len(r.Stops))
	step := len(r.Stops) / n
	for i := 0; i < n; i++ {
		c := r.Stops[min(i*step, len(r.Stops)-1)].Color
		fmt.Fprintf(&b, "  \x1b[48;2;%d;%d;%dm    \x1b[0m rgb(%3d, %3d, %3d)\n", c.R, c.G, c.B, c.R, c.G, c.B)
	}

	b.WriteString(rule + "\n")
	if len(r.Labels) > 0 {
		fmt.Fprintf(&b, "  Range: %s to %s\n", r.Labels[0].Text, r.Labels[len(r.Labels)-1].Text)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
