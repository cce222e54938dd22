package effect

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/scrim/gpucore"
)

//go:embed shaders/tiles.wgsl
var tilesWGSL string

// Aux buffer names of the tiles effect, in binding order.
const (
	auxTileParams = "tiles.params"
	auxGlyphSheet = "tiles.sheet"
	auxBrightness = "tiles.brightness"
)

// tileGrid is the number of luminance samples per tile edge.
const tileGrid = 4

// TilesOptions selects the tile size and the glyph source.
type TilesOptions struct {
	// TileSize is the tile edge in pixels. Zero means DefaultTileSize.
	TileSize int

	// Font is a TrueType or OpenType file to rasterize glyphs from.
	Font string

	// FontSize is the point size for Font. Zero means 24.
	FontSize float64

	// Sheet is a PNG glyph sheet. It takes precedence over Font.
	Sheet string

	// SheetCell is the square cell size of Sheet. Zero means the sheet height.
	SheetCell int
}

// TilesEffect is the glyph mosaic effect. Its glyph sheet and brightness
// table are built once, when the registry loads it.
type TilesEffect struct {
	computeEffect
	opts   TilesOptions
	glyphs *GlyphSet
}

// Tiles returns the glyph mosaic effect.
func Tiles(opts TilesOptions) *TilesEffect {
	return &TilesEffect{
		computeEffect: computeEffect{
			desc: Descriptor{
				Name:        "tiles",
				Description: "Redraws the screen as a mosaic of text glyphs.",
			},
			source: kernelSource("tiles", tilesWGSL, tilesKernel),
		},
		opts: opts,
	}
}

// Prepare builds the glyph set and declares it as aux data.
func (e *TilesEffect) Prepare() error {
	g, err := LoadGlyphs(e.opts)
	if err != nil {
		return fmt.Errorf("%w: tiles: %w", ErrConfiguration, err)
	}
	e.glyphs = g
	e.desc.Aux = g.aux()
	return nil
}

// Glyphs returns the glyph set, or nil before Prepare.
func (e *TilesEffect) Glyphs() *GlyphSet { return e.glyphs }

func tilesKernel(d *gpucore.Dispatch) {
	f := bindFrame(d)
	ts := int(d.UniformU32(3, 0))
	count := int(d.UniformU32(3, 1))
	sheet := d.U32(4)
	brightness := d.F32(5)

	f.each(d, func(x, y int) {
		tx, ty := x/ts*ts, y/ts*ts

		var sum gpucore.Color
		for j := range tileGrid {
			for i := range tileGrid {
				sx := tx + (2*i+1)*ts/(2*tileGrid)
				sy := ty + (2*j+1)*ts/(2*tileGrid)
				c := f.load(sx, sy)
				for k := range sum {
					sum[k] += c[k]
				}
			}
		}
		var avg gpucore.Color
		for k := range sum {
			avg[k] = sum[k] / (tileGrid * tileGrid)
		}
		lum := gpucore.Luminance(avg)

		best := 0
		bestDist := abs32(brightness[0] - lum)
		for g := 1; g < count; g++ {
			if dist := abs32(brightness[g] - lum); dist < bestDist {
				best, bestDist = g, dist
			}
		}

		cov := float32(sheet[best*ts*ts+(y-ty)*ts+(x-tx)]) / 255
		f.dst[y*f.width+x] = gpucore.Pack(gpucore.Color{avg[0] * cov, avg[1] * cov, avg[2] * cov, 1})
	})
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
