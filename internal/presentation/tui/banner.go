package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`            _       _`,
	`  _ __ ___ (_)_ __ (_) ___  _ __`,
	` | '_ ` + "`" + ` _ \| | '_ \| |/ _ \| '_ \`,
	` | | | | | | | | | | | (_) | | | |`,
	` |_| |_| |_|_|_| |_|_|\___/|_| |_|`,
}

var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

// PrintBanner writes the minion banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, p.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
