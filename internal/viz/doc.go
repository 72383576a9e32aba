// Package viz renders run summaries and abundance histories for the
// terminal: lipgloss styles for tables and metrics, asciigraph for plots.
package viz
