// Command scrim shows the desktop under its own window through a live
// GPU effect.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		os.Exit(runOverlay(args))
	}

	switch args[0] {
	case "run":
		os.Exit(runOverlay(args[1:]))
	case "monitors":
		os.Exit(runMonitors(args[1:]))
	case "effects":
		os.Exit(runEffects(args[1:]))
	case "config":
		os.Exit(runConfig(args[1:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: scrim [command] [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run                 Open the overlay window (default)")
	fmt.Fprintln(w, "  monitors            List RandR monitors of the X display")
	fmt.Fprintln(w, "  effects             List the built-in effects and their hotkeys")
	fmt.Fprintln(w, "  config validate     Validate the configuration file")
	fmt.Fprintln(w, "  config print        Print the effective configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Window keys:")
	fmt.Fprintln(w, "  1..9                Select an effect")
	fmt.Fprintln(w, "  Space, Pause        Pause or resume")
	fmt.Fprintln(w, "  Ctrl+S              Save a snapshot")
	fmt.Fprintln(w, "  Ctrl+A              Toggle always-on-top")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'scrim run -h' for overlay options.")
}
