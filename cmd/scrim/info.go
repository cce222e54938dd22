package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/scrim/capture/x11"
	"github.com/gogpu/scrim/config"
	"github.com/gogpu/scrim/effect"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

func runMonitors(args []string) int {
	fs := flag.NewFlagSet("monitors", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	display := fs.String("display", "", "X display (default: $DISPLAY)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	mons, err := x11.Monitors(*display)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(mons) == 0 {
		fmt.Println("No active monitors; use -monitor -1 to capture the root window.")
		return 0
	}
	for _, m := range mons {
		b := m.Bounds
		fmt.Printf("%d  %dx%d+%d+%d\n", m.Index, b.Dx(), b.Dy(), b.Min.X, b.Min.Y)
	}
	return 0
}

func runEffects(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: scrim effects")
		return 2
	}
	printEffects(os.Stdout, effect.Builtin(effect.TilesOptions{}))
	return 0
}

func printEffects(w io.Writer, effects []effect.Effect) {
	for i, e := range effects {
		d := e.Descriptor()
		fmt.Fprintf(w, "%d  %-10s %s\n", i+1, d.Name, d.Description)
	}
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  scrim config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  scrim config print [--path PATH] [--defaults]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/scrim/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/scrim/config.yaml)")
		defaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		cfg := config.DefaultConfig()
		if !*defaults {
			var err error
			if cfg, err = loadConfig(*path); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := enc.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		return 2
	}
}
