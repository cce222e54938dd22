package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"image"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/config"
	"github.com/gogpu/scrim/effect"
)

func TestMapKey(t *testing.T) {
	tests := []struct {
		name   string
		key    gpucontext.Key
		mods   gpucontext.Modifiers
		want   keyCommand
		hotkey int
	}{
		{"digit one", gpucontext.Key1, 0, keySelect, 1},
		{"digit nine", gpucontext.Key9, 0, keySelect, 9},
		{"digit with shift", gpucontext.Key4, gpucontext.ModShift, keySelect, 4},
		{"digit zero", gpucontext.Key0, 0, keyNone, 0},
		{"space", gpucontext.KeySpace, 0, keyPause, 0},
		{"pause", gpucontext.KeyPause, 0, keyPause, 0},
		{"ctrl s", gpucontext.KeyS, gpucontext.ModControl, keySnapshot, 0},
		{"ctrl shift s", gpucontext.KeyS, gpucontext.ModControl | gpucontext.ModShift, keySnapshot, 0},
		{"plain s", gpucontext.KeyS, 0, keyNone, 0},
		{"ctrl a", gpucontext.KeyA, gpucontext.ModControl, keyAbove, 0},
		{"ctrl digit", gpucontext.Key2, gpucontext.ModControl, keyNone, 0},
		{"escape", gpucontext.KeyEscape, 0, keyNone, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, hotkey := mapKey(tt.key, tt.mods)
			if got != tt.want || hotkey != tt.hotkey {
				t.Errorf("mapKey(%v, %v) = %v, %d; want %v, %d", tt.key, tt.mods, got, hotkey, tt.want, tt.hotkey)
			}
		})
	}
}

func TestRunFlagsApply(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var f runFlags
	f.register(fs)
	if err := fs.Parse([]string{"-source", "synthetic", "-effect", "4", "-mcp", "-monitor", "-1"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.RefreshHz = 30
	if err := f.apply(fs, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Source != config.SourceSynthetic {
		t.Errorf("Source = %q, want synthetic", cfg.Source)
	}
	if cfg.DefaultEffect != 4 {
		t.Errorf("DefaultEffect = %d, want 4", cfg.DefaultEffect)
	}
	if !cfg.Control.MCP {
		t.Error("Control.MCP = false, want true")
	}
	if cfg.Monitor != -1 {
		t.Errorf("Monitor = %d, want -1", cfg.Monitor)
	}
	// Unset flags keep the file value.
	if cfg.RefreshHz != 30 {
		t.Errorf("RefreshHz = %d, want 30", cfg.RefreshHz)
	}
}

func TestRunFlagsApplyInvalid(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var f runFlags
	f.register(fs)
	if err := fs.Parse([]string{"-effect", "12"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err := f.apply(fs, config.DefaultConfig())
	if err == nil {
		t.Fatal("apply accepted effect 12")
	}
	if !strings.Contains(err.Error(), "default_effect") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, false, slog.LevelInfo)).Info("hello", "n", 1)
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("non-terminal output is not JSON: %v: %q", err, buf.String())
	}
	if rec["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", rec["msg"])
	}

	buf.Reset()
	l := slog.New(newHandler(&buf, true, slog.LevelWarn))
	l.Info("dropped")
	l.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "msg=kept") {
		t.Errorf("terminal output = %q", out)
	}
}

func TestInitialRegion(t *testing.T) {
	src := capture.NewSynthetic(capture.SyntheticOptions{Width: 1920, Height: 1080, Origin: image.Pt(1920, 0)})
	got := initialRegion(src, 800, 600)
	if want := image.Rect(1920, 0, 2720, 600); got != want {
		t.Errorf("initialRegion = %v, want %v", got, want)
	}
}

func TestTilesOptions(t *testing.T) {
	got := tilesOptions(config.TilesConfig{TileSize: 12, Font: "a.ttf", FontSize: 18, Sheet: "s.png", SheetCell: 16})
	want := effect.TilesOptions{TileSize: 12, Font: "a.ttf", FontSize: 18, Sheet: "s.png", SheetCell: 16}
	if got != want {
		t.Errorf("tilesOptions = %+v, want %+v", got, want)
	}
}

func TestPrintEffects(t *testing.T) {
	var buf bytes.Buffer
	printEffects(&buf, effect.Builtin(effect.TilesOptions{}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), buf.String())
	}
	for i, name := range []string{"passthru", "wobbly", "lightning", "sorty", "tiles"} {
		if !strings.Contains(lines[i], name) {
			t.Errorf("line %d = %q, want %s", i, lines[i], name)
		}
	}
}
