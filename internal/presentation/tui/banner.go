package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the manifold ASCII art banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Teal to blue, one step per line
	lines := []struct {
		text  string
		color string
	}{
		{"                        _  __       _     _ ", "#2dd4bf"},
		{"  _ __ ___   __ _ _ __ (_)/ _| ___ | | __| |", "#22d3ee"},
		{" | '_ ` _ \\ / _` | '_ \\| | |_ / _ \\| |/ _` |", "#38bdf8"},
		{" | | | | | | (_| | | | | |  _| (_) | | (_| |", "#60a5fa"},
		{" |_| |_| |_|\\__,_|_| |_|_|_|  \\___/|_|\\__,_|", "#818cf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintf(w, "  %s\n\n", out.String("version "+version).Faint())
}
