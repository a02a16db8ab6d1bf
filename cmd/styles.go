package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Summaries go to stderr, so colors follow stderr's terminal.
var renderer = lipgloss.NewRenderer(os.Stderr)

var (
	colorGood  = lipgloss.Color("#4ECDC4")
	colorAlert = lipgloss.Color("#FF6B6B")
	colorWarn  = lipgloss.Color("#FFE66D")
	colorMuted = lipgloss.Color("#6c757d")
)

var (
	styleGood  = renderer.NewStyle().Foreground(colorGood).Bold(true)
	styleBad   = renderer.NewStyle().Foreground(colorAlert).Bold(true)
	styleWarn  = renderer.NewStyle().Foreground(colorWarn).Bold(true)
	styleMuted = renderer.NewStyle().Foreground(colorMuted)
)

// statusStyle picks the style for a summary line.
func statusStyle(ok, bailed bool) lipgloss.Style {
	switch {
	case bailed:
		return styleWarn
	case ok:
		return styleGood
	default:
		return styleBad
	}
}

// printStyled prints a localized line through style. The newline stays
// outside the styled block.
func printStyled(w io.Writer, style lipgloss.Style, format string, args ...any) {
	line := strings.TrimSuffix(Printer.Sprintf(format, args...), "\n")
	Printer.Fprintln(w, style.Render(line))
}
