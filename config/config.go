// Package config loads the scrim configuration file.
//
// The file is YAML. Every field is optional; missing fields keep the value
// from DefaultConfig, and unknown fields are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceX11       = "x11"
	SourceSynthetic = "synthetic"
)

// Backend names accepted by the backend field.
const (
	BackendAuto     = "auto"
	BackendNative   = "native"
	BackendSoftware = "software"
)

// Snapshot formats.
const (
	FormatPNG  = "png"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// Config is the scrim configuration.
type Config struct {
	Source        string         `yaml:"source"`
	Monitor       int            `yaml:"monitor"`
	RefreshHz     int            `yaml:"refresh_hz"`
	DefaultEffect int            `yaml:"default_effect"`
	Backend       string         `yaml:"backend"`
	Window        WindowConfig   `yaml:"window"`
	Tiles         TilesConfig    `yaml:"tiles"`
	Snapshot      SnapshotConfig `yaml:"snapshot"`
	Hotkeys       HotkeysConfig  `yaml:"hotkeys"`
	Control       ControlConfig  `yaml:"control"`
	Log           LogConfig      `yaml:"log"`
}

// WindowConfig sizes the overlay window.
type WindowConfig struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

// TilesConfig selects the glyphs of the tiles effect. Sheet wins over Font;
// with neither the built-in 7x13 face is used.
type TilesConfig struct {
	TileSize  int     `yaml:"tile_size"`
	Font      string  `yaml:"font"`
	FontSize  float64 `yaml:"font_size"`
	Sheet     string  `yaml:"sheet"`
	SheetCell int     `yaml:"sheet_cell"`
}

// SnapshotConfig places saved snapshots.
type SnapshotConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// HotkeysConfig enables desktop-wide key grabs in addition to window keys.
type HotkeysConfig struct {
	Global bool `yaml:"global"`
}

// ControlConfig enables the MCP control server on stdio.
type ControlConfig struct {
	MCP bool `yaml:"mcp"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Source:        SourceX11,
		Monitor:       0,
		RefreshHz:     60,
		DefaultEffect: 2,
		Backend:       BackendAuto,
		Window:        WindowConfig{Width: 800, Height: 600, Title: "scrim"},
		Tiles:         TilesConfig{TileSize: 8},
		Snapshot:      SnapshotConfig{Dir: ".", Format: FormatPNG},
		Log:           LogConfig{Level: "info"},
	}
}

// DefaultConfigPath returns ~/.config/scrim/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, ".config", "scrim", "config.yaml"), nil
}

// Load reads the configuration at the default path.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads and validates the configuration at path. A missing file
// yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path is user-provided intentionally
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := decodeStrictYAML(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ValidationError names the offending field by its YAML path.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(path, format string, args ...any) error {
	return &ValidationError{Path: path, Err: fmt.Errorf(format, args...)}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceX11, SourceSynthetic:
	default:
		return invalid("source", "must be one of: x11, synthetic")
	}
	if c.Monitor < -1 {
		return invalid("monitor", "must be >= -1")
	}
	if c.RefreshHz < 1 || c.RefreshHz > 1000 {
		return invalid("refresh_hz", "must be within 1..1000")
	}
	if c.DefaultEffect < 1 || c.DefaultEffect > 9 {
		return invalid("default_effect", "must be within 1..9")
	}
	switch c.Backend {
	case BackendAuto, BackendNative, BackendSoftware:
	default:
		return invalid("backend", "must be one of: auto, native, software")
	}
	if c.Window.Width < 1 || c.Window.Height < 1 {
		return invalid("window", "width and height must be > 0")
	}
	if c.Tiles.TileSize < 1 || c.Tiles.TileSize > 64 {
		return invalid("tiles.tile_size", "must be within 1..64")
	}
	if c.Tiles.FontSize < 0 {
		return invalid("tiles.font_size", "must be >= 0")
	}
	if c.Tiles.SheetCell < 0 {
		return invalid("tiles.sheet_cell", "must be >= 0")
	}
	switch c.Snapshot.Format {
	case FormatPNG, FormatBMP, FormatTIFF:
	default:
		return invalid("snapshot.format", "must be one of: png, bmp, tiff")
	}
	if _, err := c.LogLevel(); err != nil {
		return invalid("log.level", "%w", err)
	}
	return nil
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return l, nil
}
