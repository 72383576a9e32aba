package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"
)

// LogFloor replaces non-positive values on log plots.
const LogFloor = 1e-30

type PlotOptions struct {
	Height int
	Width  int
	// Log plots log10 of the values.
	Log bool
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Height: 12, Width: 80}
}

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Green,
	asciigraph.Red,
	asciigraph.Blue,
	asciigraph.Magenta,
}

func transform(values []float64, log bool) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if log {
			v = math.Log10(math.Max(v, LogFloor))
		}
		out[i] = v
	}
	return out
}

// Plot draws one history with a caption.
func Plot(values []float64, caption string, opts PlotOptions) string {
	if len(values) == 0 {
		return Subtle.Render("no data")
	}
	if opts.Log {
		caption = "log10 " + caption
	}
	return asciigraph.Plot(transform(values, opts.Log),
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption(caption),
	)
}

// PlotMany overlays several histories of equal length; names label the
// legend printed under the graph.
func PlotMany(series [][]float64, names []string, caption string, opts PlotOptions) string {
	if len(series) == 0 {
		return Subtle.Render("no data")
	}
	data := make([][]float64, len(series))
	colors := make([]asciigraph.AnsiColor, len(series))
	for i, s := range series {
		data[i] = transform(s, opts.Log)
		colors[i] = seriesColors[i%len(seriesColors)]
	}
	if opts.Log {
		caption = "log10 " + caption
	}
	graph := asciigraph.PlotMany(data,
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors...),
	)

	var legend strings.Builder
	for i, name := range names {
		if i > 0 {
			legend.WriteString("  ")
		}
		fmt.Fprintf(&legend, "%s%s%s", colors[i%len(colors)], name, asciigraph.Default)
	}
	return graph + "\n" + legend.String()
}
